package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/ytgrabba/internal/api/handler"
	mw "github.com/iconidentify/ytgrabba/internal/api/middleware"
	"github.com/iconidentify/ytgrabba/internal/ratelimit"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Video   *handler.VideoHandler
	Convert *handler.ConvertHandler
	Files   *handler.FileHandler
	Health  *handler.HealthHandler
}

// NewRouter creates the HTTP router with all routes configured. A nil
// limiter disables rate limiting; an empty apiKey disables authentication.
func NewRouter(h Handlers, limiter *ratelimit.Limiter, apiKey string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.CORS)

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	// Health endpoints (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	limit := func(route string) func(http.Handler) http.Handler {
		if limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return limiter.Middleware(route)
	}

	r.Route("/api", func(r chi.Router) {
		if apiKey != "" {
			r.Use(mw.APIKeyAuth(apiKey))
		}

		r.Get("/stats", h.Health.Stats)

		// Lookups
		r.With(limit("info")).Post("/video-info", h.Video.Info)
		r.With(limit("info")).Post("/formats", h.Video.Formats)

		// Transfers
		r.With(limit("download")).Post("/download", h.Video.Download)
		r.With(limit("download")).Get("/download", h.Video.StreamDownload)
		r.With(limit("convert")).Post("/convert-to-mp3", h.Convert.Convert)

		// Artifacts
		r.Get("/files", h.Files.List)
		r.Get("/download-file/{filename}", h.Files.Serve)
		r.Post("/delete-file", h.Files.Delete)
	})

	return r
}
