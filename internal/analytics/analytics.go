package analytics

import (
	"crypto/rand"
	"io"
	"log/slog"
	"maps"
	"regexp"
	"strconv"
	"time"
)

// Event is one analytics record. Payload always carries timestamp and sessionId.
type Event struct {
	Name      string         `json:"eventName"`
	Payload   map[string]any `json:"payload"`
	SessionID string         `json:"-"`
	Timestamp time.Time      `json:"-"`
}

// Sink receives events. Send must not block the caller for long.
type Sink interface {
	Send(Event)
}

// Event names emitted by the visitor guide
const (
	EventScanInitiated        = "scan_initiated"
	EventScanSuccess          = "scan_success"
	EventScanFailed           = "scan_failed"
	EventNavigateToScanner    = "navigation_to_scanner"
	EventNavigateToRelated    = "navigation_to_related_exhibit"
	EventNarrationStarted     = "narration_started"
	EventNarrationStopped     = "narration_stopped"
	EventAppLoadWithConsent   = "app_load_with_consent"
	EventAppLoadNoConsent     = "app_load_no_consent"
	EventPrivacyConsentAccept = "privacy_consent_accepted"
)

var eventNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidEventName reports whether name is usable as an event name and as a
// single MQTT topic level
func ValidEventName(name string) bool {
	return eventNamePattern.MatchString(name)
}

const sessionAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID returns "<unix-millis>-<7 random base36 chars>"
func NewSessionID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + randomSuffix(rand.Reader, 7)
}

// bytes at or above this bound are rejected so every symbol is equally likely
const sessionByteBound = 256 - 256%len(sessionAlphabet)

func randomSuffix(r io.Reader, n int) string {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			panic("analytics: failed to read random bytes: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= sessionByteBound {
				continue
			}
			out = append(out, sessionAlphabet[int(b)%len(sessionAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}

// Tracker stamps events for one visitor session and forwards them to a Sink
type Tracker struct {
	sessionID string
	sink      Sink
	now       func() time.Time
}

func NewTracker(sessionID string, sink Sink) *Tracker {
	if sink == nil {
		sink = Nop{}
	}
	return &Tracker{sessionID: sessionID, sink: sink, now: time.Now}
}

func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Track records an event. The caller's payload is copied; timestamp and
// sessionId are always set by the tracker, replacing any caller values.
func (t *Tracker) Track(name string, payload map[string]any) {
	now := t.now()

	p := make(map[string]any, len(payload)+2)
	maps.Copy(p, payload)
	p["timestamp"] = now.UnixMilli()
	p["sessionId"] = t.sessionID

	t.sink.Send(Event{Name: name, Payload: p, SessionID: t.sessionID, Timestamp: now})
}

// LogSink writes events to the structured log
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Analytics event", "event", e.Name, "session_id", e.SessionID, "payload", e.Payload)
}

// Nop discards events
type Nop struct{}

func (Nop) Send(Event) {}

// Multi fans an event out to several sinks
type Multi []Sink

func (m Multi) Send(e Event) {
	for _, s := range m {
		s.Send(e)
	}
}
