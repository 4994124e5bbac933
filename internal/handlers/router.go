package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the HTTP surface: the JSON API under /api and the front-end
// everywhere else.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/artworks", h.HandleListArtworks)
		r.Get("/artworks/{artworkID}", h.HandleGetArtwork)

		r.Post("/sessions", h.HandleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.HandleGetSession)
			r.Delete("/", h.HandleDeleteSession)
			r.Get("/events", h.HandleSessionEvents)
			r.Put("/locale", h.HandleSetLocale)
			r.Post("/scan", h.HandleScan)
			r.Post("/upload", h.HandleUpload)
			r.Post("/related/{artworkID}", h.HandleSelectRelated)
			r.Post("/reset", h.HandleReset)
			r.Post("/narration", h.HandleStartNarration)
			r.Delete("/narration", h.HandleStopNarration)
		})

		r.Get("/consent", h.HandleGetConsent)
		r.Post("/consent", h.HandleAcceptConsent)

		r.Get("/locales", h.HandleListLocales)
		r.Get("/locales/{locale}", h.HandleGetLocale)

		r.Post("/events", h.HandleTrackEvent)
		if h.opts.Stats != nil {
			r.Get("/stats", h.HandleStats)
		}
	})

	r.Get("/*", h.HandleStatic)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
