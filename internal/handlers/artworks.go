package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) HandleListArtworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.opts.Catalog.All())
}

func (h *Handler) HandleGetArtwork(w http.ResponseWriter, r *http.Request) {
	art, ok := h.opts.Catalog.Find(chi.URLParam(r, "artworkID"))
	if !ok {
		writeError(w, http.StatusNotFound, "Artwork not found")
		return
	}
	writeJSON(w, http.StatusOK, art)
}
