package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/artscan/internal/models"
)

// ErrCameraNotReady is returned by Capture unless the camera has a live frame
var ErrCameraNotReady = errors.New("camera is not ready")

// ReasonCameraError is the message key shown when the camera cannot be used
const ReasonCameraError = "camera_error"

// CameraState is the observable state of the live capture source
type CameraState string

const (
	CameraIdle         CameraState = "idle"
	CameraInitializing CameraState = "initializing"
	CameraReady        CameraState = "ready"
	CameraUnavailable  CameraState = "unavailable"
)

// CameraStatus is a camera state plus, when unavailable, why
type CameraStatus struct {
	State  CameraState `json:"state"`
	Reason string      `json:"reason,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// Device hands out scoped access to a live video input
type Device interface {
	// Acquire only fails if ctx ends while a previous release is still pending.
	// Device problems are reported through the viewfinder's status.
	Acquire(ctx context.Context, onChange func(CameraStatus)) (Viewfinder, error)
}

// Viewfinder is one holder's lease on a Device
type Viewfinder interface {
	Status() CameraStatus
	Capture() (models.Image, error)
	// Release is idempotent
	Release()
}

// CameraConfig configures the ffmpeg-backed camera
type CameraConfig struct {
	Command        string
	InputFormat    string
	Device         string
	FrameRate      int
	StartupTimeout time.Duration
	StopTimeout    time.Duration
}

// Camera streams MJPEG frames from ffmpeg while at least one lease is held
type Camera struct {
	cfg CameraConfig

	mu       sync.Mutex
	leases   map[*lease]struct{}
	status   CameraStatus
	frame    []byte
	run      *cameraRun
	stopping chan struct{}
}

// NewCamera creates a Camera; nothing is started until the first Acquire
func NewCamera(cfg CameraConfig) *Camera {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 5
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 10 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 1200 * time.Millisecond
	}
	return &Camera{
		cfg:    cfg,
		leases: make(map[*lease]struct{}),
		status: CameraStatus{State: CameraIdle},
	}
}

func (c *Camera) Acquire(ctx context.Context, onChange func(CameraStatus)) (Viewfinder, error) {
	for {
		c.mu.Lock()
		if pending := c.stopping; pending != nil {
			c.mu.Unlock()
			select {
			case <-pending:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		l := &lease{camera: c, onChange: onChange}
		c.leases[l] = struct{}{}
		var notify []func(CameraStatus)
		if len(c.leases) == 1 {
			r := newCameraRun()
			c.run = r
			c.frame = nil
			c.status = CameraStatus{State: CameraInitializing}
			notify = c.watchersLocked()
			go c.stream(r)
		}
		status := c.status
		c.mu.Unlock()

		fire(notify, status)
		return l, nil
	}
}

// Status returns the shared camera status
func (c *Camera) Status() CameraStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close stops the capture process regardless of outstanding leases and waits for it to exit
func (c *Camera) Close() {
	c.mu.Lock()
	for l := range c.leases {
		l.released = true
		delete(c.leases, l)
	}
	r := c.run
	c.run = nil
	c.frame = nil
	c.status = CameraStatus{State: CameraIdle}
	pending := c.stopping
	c.mu.Unlock()

	if r != nil {
		r.stop(c.cfg.StopTimeout)
		<-r.done
	}
	if pending != nil {
		<-pending
	}
}

func (c *Camera) release(l *lease) {
	c.mu.Lock()
	if l.released {
		c.mu.Unlock()
		return
	}
	l.released = true
	delete(c.leases, l)
	if len(c.leases) > 0 || c.run == nil {
		c.mu.Unlock()
		return
	}

	r := c.run
	c.run = nil
	c.frame = nil
	c.status = CameraStatus{State: CameraIdle}
	done := make(chan struct{})
	c.stopping = done
	c.mu.Unlock()

	go func() {
		r.stop(c.cfg.StopTimeout)
		<-r.done

		c.mu.Lock()
		c.stopping = nil
		c.mu.Unlock()
		close(done)
		slog.Debug("Camera released", "device", c.cfg.Device)
	}()
}

func (c *Camera) capture(l *lease) (models.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l.released || c.status.State != CameraReady || len(c.frame) == 0 {
		return models.Image{}, ErrCameraNotReady
	}
	return models.Image{Data: bytes.Clone(c.frame), MIMEType: "image/jpeg"}, nil
}

func (c *Camera) leaseStatus(l *lease) CameraStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l.released {
		return CameraStatus{State: CameraIdle}
	}
	return c.status
}

func (c *Camera) watchersLocked() []func(CameraStatus) {
	var out []func(CameraStatus)
	for l := range c.leases {
		if l.onChange != nil {
			out = append(out, l.onChange)
		}
	}
	return out
}

func fire(fns []func(CameraStatus), status CameraStatus) {
	for _, fn := range fns {
		fn(status)
	}
}

func (c *Camera) args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.Device,
		"-r", strconv.Itoa(c.cfg.FrameRate),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"-",
	}
}

// stream owns one ffmpeg process from start to exit
func (c *Camera) stream(r *cameraRun) {
	defer close(r.done)

	cmd := exec.Command(c.cfg.Command, c.args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.markUnavailable(r, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err))
		return
	}
	if err := cmd.Start(); err != nil {
		c.markUnavailable(r, fmt.Errorf("failed to start ffmpeg: %w", err))
		return
	}

	r.mu.Lock()
	r.process = cmd.Process
	r.mu.Unlock()
	select {
	case <-r.stopCh:
		_ = cmd.Process.Kill()
	default:
	}

	// Wait closes the pipe, so it runs only after the reader hit EOF
	eof := make(chan struct{})
	go func() {
		defer close(eof)
		c.readFrames(r, stdout)
	}()
	waitErr := make(chan error, 1)
	go func() {
		<-eof
		waitErr <- cmd.Wait()
	}()

	timer := time.NewTimer(c.cfg.StartupTimeout)
	defer timer.Stop()

	select {
	case <-r.firstFrame:
	case <-r.stopCh:
	case <-timer.C:
		c.markUnavailable(r, errors.New("no frames received from camera"))
		_ = cmd.Process.Kill()
		<-waitErr
		return
	case err := <-waitErr:
		c.markUnavailable(r, exitError(err, &stderr))
		return
	}

	err = <-waitErr
	if !r.stopped() {
		c.markUnavailable(r, exitError(err, &stderr))
	}
}

func (c *Camera) readFrames(r *cameraRun, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 256<<10), 16<<20)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		c.storeFrame(r, scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("Failed to read camera frames", "device", c.cfg.Device, "error", err)
		// keep ffmpeg from blocking on a full pipe until it exits
		_, _ = io.Copy(io.Discard, stdout)
	}
}

func (c *Camera) storeFrame(r *cameraRun, frame []byte) {
	c.mu.Lock()
	if c.run != r {
		c.mu.Unlock()
		return
	}
	c.frame = bytes.Clone(frame)
	var notify []func(CameraStatus)
	if c.status.State != CameraReady {
		c.status = CameraStatus{State: CameraReady}
		notify = c.watchersLocked()
		slog.Info("Camera ready", "device", c.cfg.Device)
	}
	status := c.status
	c.mu.Unlock()

	r.firstOnce.Do(func() { close(r.firstFrame) })
	fire(notify, status)
}

func (c *Camera) markUnavailable(r *cameraRun, err error) {
	c.mu.Lock()
	if c.run != r {
		c.mu.Unlock()
		return
	}
	c.frame = nil
	c.status = CameraStatus{State: CameraUnavailable, Reason: ReasonCameraError, Detail: err.Error()}
	notify := c.watchersLocked()
	status := c.status
	c.mu.Unlock()

	slog.Warn("Camera unavailable", "device", c.cfg.Device, "error", err)
	fire(notify, status)
}

func exitError(err error, stderr *bytes.Buffer) error {
	msg := string(bytes.TrimSpace(stderr.Bytes()))
	if err == nil {
		err = errors.New("ffmpeg exited")
	}
	if msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}

type cameraRun struct {
	mu       sync.Mutex
	process  *os.Process
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	firstOnce  sync.Once
	firstFrame chan struct{}
}

func newCameraRun() *cameraRun {
	return &cameraRun{
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		firstFrame: make(chan struct{}),
	}
}

func (r *cameraRun) stopped() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

// stop interrupts the process and kills it if it outlives grace
func (r *cameraRun) stop(grace time.Duration) {
	r.stopOnce.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		p := r.process
		r.mu.Unlock()
		if p == nil {
			return
		}

		_ = p.Signal(os.Interrupt)
		select {
		case <-r.done:
		case <-time.After(grace):
			_ = p.Kill()
		}
	})
}

type lease struct {
	camera   *Camera
	onChange func(CameraStatus)
	released bool // guarded by camera.mu
}

func (l *lease) Status() CameraStatus           { return l.camera.leaseStatus(l) }
func (l *lease) Capture() (models.Image, error) { return l.camera.capture(l) }
func (l *lease) Release()                       { l.camera.release(l) }

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// splitJPEG is a bufio.SplitFunc yielding whole JPEG images from an MJPEG stream
func splitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// keep a trailing 0xff that may begin the next marker
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	end += start + len(jpegSOI) + len(jpegEOI)
	return end, data[start:end], nil
}

// Unavailable is a Device for kiosks without a camera
type Unavailable struct {
	Detail string
}

func (u Unavailable) Acquire(context.Context, func(CameraStatus)) (Viewfinder, error) {
	return unavailableViewfinder{status: CameraStatus{State: CameraUnavailable, Reason: ReasonCameraError, Detail: u.Detail}}, nil
}

type unavailableViewfinder struct {
	status CameraStatus
}

func (v unavailableViewfinder) Status() CameraStatus           { return v.status }
func (v unavailableViewfinder) Capture() (models.Image, error) { return models.Image{}, ErrCameraNotReady }
func (v unavailableViewfinder) Release()                       {}
