package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lehigh-university-libraries/artscan/internal/i18n"
)

func (h *Handler) HandleListLocales(w http.ResponseWriter, r *http.Request) {
	if h.opts.Bundle == nil {
		writeJSON(w, http.StatusOK, []string{i18n.DefaultLocale})
		return
	}
	writeJSON(w, http.StatusOK, h.opts.Bundle.Supported())
}

// HandleGetLocale returns a complete string table, defaults filled in
func (h *Handler) HandleGetLocale(w http.ResponseWriter, r *http.Request) {
	locale := chi.URLParam(r, "locale")
	if h.opts.Bundle == nil || !h.opts.Bundle.IsSupported(locale) {
		writeError(w, http.StatusNotFound, "Unknown locale: "+locale)
		return
	}
	writeJSON(w, http.StatusOK, h.opts.Bundle.Table(locale))
}
