package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/artscan/internal/analytics"
	"github.com/lehigh-university-libraries/artscan/internal/guide"
	"github.com/lehigh-university-libraries/artscan/internal/sse"
)

const deviceCookieMaxAge = 365 * 24 * 60 * 60

type createSessionResponse struct {
	SessionID       string    `json:"session_id"`
	DeviceID        string    `json:"device_id"`
	Locale          string    `json:"locale"`
	ConsentRequired bool      `json:"consent_required"`
	State           stateView `json:"state"`
}

// HandleCreateSession starts a visitor session, or resumes the one named by
// the session cookie when it is still live.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Locale string `json:"locale"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
			return
		}
	}

	deviceID := h.deviceID(w, r)

	session, resumed := h.cookieSession(r)
	if resumed && session.DeviceID != deviceID {
		resumed = false
	}
	if !resumed {
		session = h.newSession(deviceID, h.pickLocale(request.Locale, r))
		h.sessions.Set(session.ID, session)
		slog.Info("Created visitor session", "session", session.ID, "locale", session.Locale())
	} else if request.Locale != "" && h.supported(request.Locale) {
		session.setLocale(request.Locale)
	}
	session.touch(time.Now())

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	consentRequired := true
	if h.opts.Consent != nil {
		var err error
		if resumed {
			consentRequired, err = h.opts.Consent.Required(r.Context(), deviceID)
		} else {
			consentRequired, err = h.opts.Consent.Load(r.Context(), deviceID, session.Tracker)
		}
		if err != nil {
			slog.Error("Unable to read consent", "device", deviceID, "err", err)
		}
	}

	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, createSessionResponse{
		SessionID:       session.ID,
		DeviceID:        deviceID,
		Locale:          session.Locale(),
		ConsentRequired: consentRequired,
		State:           h.view(session, session.Machine.Snapshot()),
	})
}

func (h *Handler) newSession(deviceID, locale string) *Session {
	now := time.Now()
	s := &Session{
		ID:        analytics.NewSessionID(),
		DeviceID:  deviceID,
		CreatedAt: now,
		locale:    locale,
		lastSeen:  now,
	}
	s.Tracker = analytics.NewTracker(s.ID, h.opts.Sink)
	s.Machine = guide.New(guide.Config{
		Catalog:     h.opts.Catalog,
		Identifier:  h.opts.Identifier,
		Camera:      h.opts.Camera,
		Synthesizer: h.opts.Synthesizer,
		Tracker:     s.Tracker,
		Lang:        locale,
		OnChange: func(st guide.State) {
			h.publish(s, st)
		},
	})
	return s
}

// deviceID returns the long-lived device cookie, issuing one if missing
func (h *Handler) deviceID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(deviceCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     deviceCookie,
		Value:    id.String(),
		Path:     "/",
		MaxAge:   deviceCookieMaxAge,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id.String()
}

func (h *Handler) supported(locale string) bool {
	return h.opts.Bundle == nil || h.opts.Bundle.IsSupported(locale)
}

func (h *Handler) pickLocale(requested string, r *http.Request) string {
	if requested != "" && h.supported(requested) {
		return requested
	}
	if h.opts.Bundle == nil {
		return "en"
	}
	return h.opts.Bundle.Match(r.Header.Get("Accept-Language"))
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.view(session, session.Machine.Snapshot()))
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.closeSession(session)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSessionEvents streams state snapshots for one session
func (h *Handler) HandleSessionEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	session.streams.Add(1)
	defer func() {
		session.streams.Add(-1)
		session.touch(time.Now())
	}()

	initial := sse.Event{Type: "state", Data: h.view(session, session.Machine.Snapshot())}
	h.opts.Broker.Serve(w, r, session.ID, initial)
}

func (h *Handler) HandleSetLocale(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	var request struct {
		Locale string `json:"locale"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if request.Locale == "" || !h.supported(request.Locale) {
		writeError(w, http.StatusBadRequest, "Unsupported locale: "+request.Locale)
		return
	}

	session.setLocale(request.Locale)
	st := session.Machine.Snapshot()
	h.publish(session, st)
	writeJSON(w, http.StatusOK, h.view(session, st))
}

func (h *Handler) closeSession(s *Session) {
	if _, ok := h.sessions.Delete(s.ID); !ok {
		return
	}
	s.Machine.Close()
	h.opts.Broker.CloseTopic(s.ID)
	slog.Info("Closed visitor session", "session", s.ID)
}

// Sweep closes sessions idle for longer than maxIdle and returns how many were
// closed. A session with an open event stream is never idle.
func (h *Handler) Sweep(now time.Time, maxIdle time.Duration) int {
	closed := 0
	for _, s := range h.sessions.GetAll() {
		if s.streams.Load() == 0 && now.Sub(s.idleSince()) > maxIdle {
			h.closeSession(s)
			closed++
		}
	}
	return closed
}

// Close tears down every live session
func (h *Handler) Close() {
	for _, s := range h.sessions.GetAll() {
		h.closeSession(s)
	}
}
