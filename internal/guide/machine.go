package guide

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/artscan/internal/analytics"
	"github.com/lehigh-university-libraries/artscan/internal/capture"
	"github.com/lehigh-university-libraries/artscan/internal/catalog"
	"github.com/lehigh-university-libraries/artscan/internal/identify"
	"github.com/lehigh-university-libraries/artscan/internal/models"
	"github.com/lehigh-university-libraries/artscan/internal/narration"
)

// Identifier names the catalog artwork in an image
type Identifier interface {
	Identify(ctx context.Context, img models.Image) identify.Result
}

// Tracker records analytics events
type Tracker interface {
	Track(name string, payload map[string]any)
}

// Config wires a Machine to its collaborators
type Config struct {
	Catalog     *catalog.Catalog
	Identifier  Identifier
	Camera      capture.Device
	Synthesizer narration.Synthesizer
	Tracker     Tracker
	Lang        string
	// OnChange receives snapshots in increasing Version order, one at a time.
	// A snapshot overtaken by a newer one is not delivered.
	OnChange func(State)
	// AcquireTimeout bounds waiting for a previous camera release
	AcquireTimeout time.Duration
}

// Machine owns one visitor's view state. All transitions go through its methods.
type Machine struct {
	catalog    *catalog.Catalog
	identifier Identifier
	camera     capture.Device
	tracker    Tracker
	onChange   func(State)
	acquireTTL time.Duration
	narrator   *narration.Controller

	// opMu orders transitions that also drive narration
	opMu sync.Mutex

	mu         sync.Mutex
	view       View
	active     *models.Artwork
	related    []models.Artwork
	errKind    ErrorKind
	errMessage string
	version    uint64
	lang       string
	closed     bool

	attempt uint64
	cancel  context.CancelFunc

	cameraGen  uint64
	viewfinder capture.Viewfinder
	cameraErr  error

	// pubMu serializes OnChange; published is the last Version delivered
	pubMu     sync.Mutex
	published uint64
}

// New creates a Machine in the scanning view and starts acquiring the camera
func New(cfg Config) *Machine {
	m := &Machine{
		catalog:    cfg.Catalog,
		identifier: cfg.Identifier,
		camera:     cfg.Camera,
		tracker:    cfg.Tracker,
		onChange:   cfg.OnChange,
		acquireTTL: cfg.AcquireTimeout,
		view:       ViewScanning,
		lang:       cfg.Lang,
	}
	if m.camera == nil {
		m.camera = capture.Unavailable{Detail: "camera disabled"}
	}
	if m.tracker == nil {
		m.tracker = nopTracker{}
	}
	if m.acquireTTL <= 0 {
		m.acquireTTL = 10 * time.Second
	}
	if m.lang == "" {
		m.lang = "en"
	}

	synth := cfg.Synthesizer
	if synth == nil {
		synth = narration.Silent{}
	}
	m.narrator = narration.NewController(synth, narration.WithOnChange(m.narrationChanged))

	m.mu.Lock()
	m.enterScanningLocked()
	m.mu.Unlock()
	return m
}

// Snapshot returns the current state
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// SetLang changes the narration language
func (m *Machine) SetLang(lang string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lang = lang
}

// Submit starts identifying an image the visitor provided. The returned
// channel closes once the attempt has settled or been abandoned.
func (m *Machine) Submit(img models.Image) (<-chan struct{}, error) {
	m.mu.Lock()
	if m.closed || m.view != ViewScanning {
		m.mu.Unlock()
		return nil, ErrNotApplicable
	}
	done, snap := m.startLoadingLocked(img)
	m.mu.Unlock()

	m.tracker.Track(analytics.EventScanInitiated, nil)
	m.notify(snap)
	return done, nil
}

// Capture samples the live camera and submits the frame
func (m *Machine) Capture() (<-chan struct{}, error) {
	m.mu.Lock()
	if m.closed || m.view != ViewScanning {
		m.mu.Unlock()
		return nil, ErrNotApplicable
	}
	if m.viewfinder == nil {
		m.mu.Unlock()
		return nil, capture.ErrCameraNotReady
	}
	img, err := m.viewfinder.Capture()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	done, snap := m.startLoadingLocked(img)
	m.mu.Unlock()

	m.tracker.Track(analytics.EventScanInitiated, nil)
	m.notify(snap)
	return done, nil
}

// SelectRelated shows another catalog artwork from the detail view
func (m *Machine) SelectRelated(id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed || m.view != ViewDetail {
		m.mu.Unlock()
		return ErrNotApplicable
	}
	art, ok := m.catalog.Find(id)
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.showLocked(art)
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.narrator.Stop()
	m.tracker.Track(analytics.EventNavigateToRelated, map[string]any{"exhibitId": art.ID})
	m.notify(snap)
	return nil
}

// Reset returns to the scanning view from detail, error or loading.
// An in-flight identification is cancelled and its result discarded.
func (m *Machine) Reset() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed || m.view == ViewScanning {
		m.mu.Unlock()
		return ErrNotApplicable
	}
	m.abandonAttemptLocked()
	m.active = nil
	m.related = nil
	m.errKind = ""
	m.errMessage = ""
	m.enterScanningLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.narrator.Stop()
	m.tracker.Track(analytics.EventNavigateToScanner, nil)
	m.notify(snap)
	return nil
}

// StartNarration reads the active artwork's description aloud
func (m *Machine) StartNarration() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed || m.view != ViewDetail || m.active == nil {
		m.mu.Unlock()
		return ErrNotApplicable
	}
	text, lang := m.active.Description, m.lang
	m.mu.Unlock()

	m.narrator.Start(text, lang)
	m.tracker.Track(analytics.EventNarrationStarted, nil)
	return nil
}

// StopNarration stops any narration; without one it does nothing
func (m *Machine) StopNarration() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.narrator.Narrating() {
		return
	}
	m.narrator.Stop()
	m.tracker.Track(analytics.EventNarrationStopped, nil)
}

// Close tears the session down: camera, narration and any pending call
func (m *Machine) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.abandonAttemptLocked()
	m.leaveScanningLocked()
	m.mu.Unlock()

	m.narrator.Stop()
}

func (m *Machine) startLoadingLocked(img models.Image) (<-chan struct{}, State) {
	m.leaveScanningLocked()
	m.view = ViewLoading
	m.attempt++
	token := m.attempt

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.version++

	go m.identify(ctx, token, img, done)
	return done, m.snapshotLocked()
}

func (m *Machine) identify(ctx context.Context, token uint64, img models.Image, done chan struct{}) {
	defer close(done)
	res := m.identifier.Identify(ctx, img)
	m.settle(token, res)
}

// settle applies a result only if it belongs to the current loading attempt
func (m *Machine) settle(token uint64, res identify.Result) {
	m.mu.Lock()
	if m.closed || m.view != ViewLoading || m.attempt != token {
		m.mu.Unlock()
		slog.Debug("Discarding stale identification result", "attempt", token, "result", res.String())
		return
	}
	m.cancel()
	m.cancel = nil

	var event string
	var payload map[string]any
	switch res.Outcome {
	case identify.OutcomeMatched:
		art, ok := m.catalog.Find(res.ArtworkID)
		if ok {
			m.showLocked(art)
			m.view = ViewDetail
			event, payload = analytics.EventScanSuccess, map[string]any{"exhibitId": art.ID}
		} else {
			slog.Error("Identified artwork is missing from the catalog", "artwork_id", res.ArtworkID)
			m.failLocked(ErrorDataInconsistency, MessageGeneric)
			event, payload = analytics.EventScanFailed, map[string]any{"reason": "data_inconsistency"}
		}
	case identify.OutcomeNoMatch:
		m.failLocked(ErrorNotIdentified, MessageNotIdentified)
		event, payload = analytics.EventScanFailed, map[string]any{"reason": "not_identified"}
	default:
		slog.Error("Identification failed", "error", res.Err)
		m.failLocked(ErrorIdentificationFailed, MessageGeneric)
		event, payload = analytics.EventScanFailed, map[string]any{"reason": "api_error"}
	}
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.tracker.Track(event, payload)
	m.notify(snap)
}

func (m *Machine) showLocked(art models.Artwork) {
	m.active = &art
	m.related = m.catalog.FindAll(art.RelatedArtworkIDs)
}

func (m *Machine) failLocked(kind ErrorKind, message string) {
	m.view = ViewError
	m.active = nil
	m.related = nil
	m.errKind = kind
	m.errMessage = message
}

func (m *Machine) abandonAttemptLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.attempt++
}

func (m *Machine) enterScanningLocked() {
	m.view = ViewScanning
	m.cameraErr = nil
	m.version++
	m.cameraGen++
	gen := m.cameraGen
	go m.acquireCamera(gen)
}

func (m *Machine) leaveScanningLocked() {
	m.cameraGen++
	if m.viewfinder != nil {
		m.viewfinder.Release()
		m.viewfinder = nil
	}
}

// acquireCamera runs outside the lock because Acquire waits for pending releases
func (m *Machine) acquireCamera(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.acquireTTL)
	defer cancel()

	vf, err := m.camera.Acquire(ctx, m.cameraChanged)
	if err != nil {
		slog.Warn("Failed to acquire camera", "error", err)
		m.mu.Lock()
		if m.closed || m.view != ViewScanning || m.cameraGen != gen {
			m.mu.Unlock()
			return
		}
		m.cameraErr = err
		m.version++
		snap := m.snapshotLocked()
		m.mu.Unlock()

		m.notify(snap)
		return
	}

	m.mu.Lock()
	if m.closed || m.view != ViewScanning || m.cameraGen != gen {
		m.mu.Unlock()
		vf.Release()
		return
	}
	m.viewfinder = vf
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

func (m *Machine) cameraChanged(capture.CameraStatus) {
	m.mu.Lock()
	if m.closed || m.view != ViewScanning || m.viewfinder == nil {
		m.mu.Unlock()
		return
	}
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

func (m *Machine) narrationChanged(bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

func (m *Machine) snapshotLocked() State {
	s := State{
		View:         m.view,
		ErrorKind:    m.errKind,
		ErrorMessage: m.errMessage,
		Narrating:    m.narrator.Narrating(),
		Version:      m.version,
	}
	if m.active != nil {
		art := *m.active
		s.Active = &art
		s.Related = append([]models.Artwork(nil), m.related...)
	}

	switch {
	case m.view != ViewScanning:
		s.Camera = capture.CameraStatus{State: capture.CameraIdle}
	case m.viewfinder == nil && m.cameraErr != nil:
		s.Camera = capture.CameraStatus{
			State:  capture.CameraUnavailable,
			Reason: capture.ReasonCameraError,
			Detail: m.cameraErr.Error(),
		}
	case m.viewfinder == nil:
		s.Camera = capture.CameraStatus{State: capture.CameraInitializing}
	default:
		s.Camera = m.viewfinder.Status()
	}
	return s
}

type nopTracker struct{}

func (nopTracker) Track(string, map[string]any) {}

func (m *Machine) notify(s State) {
	if m.onChange == nil {
		return
	}
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	if s.Version <= m.published {
		slog.Debug("Dropping superseded state snapshot", "version", s.Version, "published", m.published)
		return
	}
	m.published = s.Version
	m.onChange(s)
}
