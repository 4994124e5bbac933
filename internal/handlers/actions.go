package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// respond writes the session's current state, first waiting for done when the
// caller asked for ?wait=true.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, session *Session, done <-chan struct{}) {
	status := http.StatusOK
	if done != nil {
		status = http.StatusAccepted
		if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
			select {
			case <-done:
				status = http.StatusOK
			case <-r.Context().Done():
				return
			}
		}
	}
	writeJSON(w, status, h.view(session, session.Machine.Snapshot()))
}

// HandleScan captures a frame from the camera and starts identification
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	done, err := session.Machine.Capture()
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	h.respond(w, r, session, done)
}

func (h *Handler) HandleSelectRelated(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	if err := session.Machine.SelectRelated(chi.URLParam(r, "artworkID")); err != nil {
		writeTransitionError(w, err)
		return
	}
	h.respond(w, r, session, nil)
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	if err := session.Machine.Reset(); err != nil {
		writeTransitionError(w, err)
		return
	}
	h.respond(w, r, session, nil)
}

func (h *Handler) HandleStartNarration(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	if err := session.Machine.StartNarration(); err != nil {
		writeTransitionError(w, err)
		return
	}
	h.respond(w, r, session, nil)
}

// HandleStopNarration is a no-op when nothing is playing
func (h *Handler) HandleStopNarration(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	session.Machine.StopNarration()
	h.respond(w, r, session, nil)
}
