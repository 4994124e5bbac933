package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/artscan/internal/analytics"
)

// EventCounter reports stored analytics totals per event name
type EventCounter interface {
	EventCounts(ctx context.Context, since time.Time) (map[string]int, error)
}

// HandleTrackEvent records a UI-only event (for example a tapped link) through
// the visitor's session tracker.
func (h *Handler) HandleTrackEvent(w http.ResponseWriter, r *http.Request) {
	var request struct {
		EventName string         `json:"eventName"`
		Payload   map[string]any `json:"payload"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if request.EventName == "" {
		writeError(w, http.StatusBadRequest, "eventName is required")
		return
	}
	if !analytics.ValidEventName(request.EventName) {
		writeError(w, http.StatusBadRequest, "eventName must be 1-64 characters of a-z, 0-9 or _")
		return
	}

	h.trackerFor(r).Track(request.EventName, request.Payload)
	w.WriteHeader(http.StatusAccepted)
}

// HandleStats returns event totals since ?since (a duration, default 24h)
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid since duration: "+raw)
			return
		}
		window = d
	}

	counts, err := h.opts.Stats.EventCounts(r.Context(), time.Now().Add(-window))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":  window.String(),
		"events": counts,
	})
}
