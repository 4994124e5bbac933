package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/artscan/internal/analytics"
)

type consentResponse struct {
	Required bool `json:"required"`
}

// HandleGetConsent reports whether this device still needs the privacy notice
func (h *Handler) HandleGetConsent(w http.ResponseWriter, r *http.Request) {
	if h.opts.Consent == nil {
		writeJSON(w, http.StatusOK, consentResponse{Required: true})
		return
	}

	required, err := h.opts.Consent.Required(r.Context(), h.deviceID(w, r))
	if err != nil {
		slog.Error("Unable to read consent", "err", err)
	}
	writeJSON(w, http.StatusOK, consentResponse{Required: required})
}

// HandleAcceptConsent records the visitor's acknowledgement for this device
func (h *Handler) HandleAcceptConsent(w http.ResponseWriter, r *http.Request) {
	if h.opts.Consent == nil {
		writeError(w, http.StatusServiceUnavailable, "Consent storage is not configured")
		return
	}

	deviceID := h.deviceID(w, r)
	tracker := h.trackerFor(r)
	if err := h.opts.Consent.Accept(r.Context(), deviceID, tracker); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, consentResponse{Required: false})
}

// trackerFor returns the tracker of the cookie's session, or a fresh one
// when the browser has no live session.
func (h *Handler) trackerFor(r *http.Request) *analytics.Tracker {
	if s, ok := h.cookieSession(r); ok {
		return s.Tracker
	}
	return analytics.NewTracker(analytics.NewSessionID(), h.opts.Sink)
}
