package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lehigh-university-libraries/artscan/internal/analytics"
	"github.com/lehigh-university-libraries/artscan/internal/capture"
	"github.com/lehigh-university-libraries/artscan/internal/catalog"
	"github.com/lehigh-university-libraries/artscan/internal/consent"
	"github.com/lehigh-university-libraries/artscan/internal/guide"
	"github.com/lehigh-university-libraries/artscan/internal/i18n"
	"github.com/lehigh-university-libraries/artscan/internal/narration"
	"github.com/lehigh-university-libraries/artscan/internal/sse"
	"github.com/lehigh-university-libraries/artscan/internal/storage"
)

const (
	sessionCookie = "artscan_session"
	deviceCookie  = "artscan_device"
)

// Options wires the HTTP layer to the rest of the application
type Options struct {
	Catalog     *catalog.Catalog
	Identifier  guide.Identifier
	Camera      capture.Device
	Synthesizer narration.Synthesizer
	Files       *capture.FileSource
	Consent     *consent.Service
	Bundle      *i18n.Bundle
	Broker      *sse.Broker
	Sink        analytics.Sink
	// Stats is optional; without it /api/stats is not served
	Stats         EventCounter
	StaticDir     string
	SecureCookies bool
}

// Handler serves the visitor API
type Handler struct {
	opts     Options
	sessions *storage.SessionStore[*Session]
}

// Session is one browser session: a guide machine plus its analytics tracker
type Session struct {
	ID        string
	DeviceID  string
	Machine   *guide.Machine
	Tracker   *analytics.Tracker
	CreatedAt time.Time

	mu       sync.Mutex
	locale   string
	lastSeen time.Time
	streams  atomic.Int32
}

func (s *Session) Locale() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locale
}

func (s *Session) setLocale(locale string) {
	s.mu.Lock()
	s.locale = locale
	s.mu.Unlock()
	s.Machine.SetLang(locale)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func New(opts Options) *Handler {
	if opts.Files == nil {
		opts.Files = capture.NewFileSource(0)
	}
	if opts.Broker == nil {
		opts.Broker = sse.NewBroker()
	}
	if opts.Sink == nil {
		opts.Sink = analytics.LogSink{}
	}
	if opts.StaticDir == "" {
		opts.StaticDir = "static"
	}
	return &Handler{
		opts:     opts,
		sessions: storage.New[*Session](),
	}
}

// Response helpers
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		slog.Error(message, "status", status)
	} else {
		slog.Debug(message, "status", status)
	}
	writeJSON(w, status, errResponse{Error: message})
}

// writeTransitionError maps guide and capture errors onto status codes
func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guide.ErrNotApplicable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, guide.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, capture.ErrCameraNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	session, exists := h.sessions.Get(sessionID)
	if !exists {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	session.touch(time.Now())
	return session, true
}

// cookieSession returns the session named by the request's session cookie, if still live
func (h *Handler) cookieSession(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}
	return h.sessions.Get(c.Value)
}

// stateView is a machine snapshot with its message keys resolved for the session's locale
type stateView struct {
	guide.State
	SessionID     string `json:"session_id"`
	Locale        string `json:"locale"`
	Message       string `json:"message,omitempty"`
	CameraMessage string `json:"camera_message,omitempty"`
}

func (h *Handler) view(s *Session, st guide.State) stateView {
	locale := s.Locale()
	v := stateView{State: st, SessionID: s.ID, Locale: locale}
	if st.ErrorMessage != "" {
		v.Message = h.translate(locale, st.ErrorMessage)
	}
	if st.Camera.Reason != "" {
		v.CameraMessage = h.translate(locale, st.Camera.Reason)
	}
	return v
}

func (h *Handler) translate(locale, key string) string {
	if h.opts.Bundle == nil {
		return key
	}
	return h.opts.Bundle.T(locale, key)
}

func (h *Handler) publish(s *Session, st guide.State) {
	h.opts.Broker.Publish(s.ID, sse.Event{Type: "state", Data: h.view(s, st)})
}
