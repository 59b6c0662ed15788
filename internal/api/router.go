package api

import (
	"net/http"
	"time"

	"vsme-guru/internal/common/logger"
	"vsme-guru/internal/common/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the REST routes. obs may be nil.
func NewRouter(h *Handler, obs *observability.Observability) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if obs != nil {
		r.Use(obs.Middleware)
	}
	r.Use(requestLogger(h.log))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/ready", h.Ready)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", h.NotImplemented)
			r.Post("/signup", h.NotImplemented)
			r.Post("/signout", h.NotImplemented)
			r.Get("/session", h.NotImplemented)
		})

		r.Route("/wizard/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)
				r.Patch("/data", h.PatchData)
				r.Put("/fields/{name}", h.PutField)
				r.Post("/validate", h.Validate)
				r.Post("/next", h.Next)
				r.Post("/previous", h.Previous)
				r.Post("/step", h.GoToStep)
				r.Post("/submit", h.Submit)
				r.Post("/reset", h.Reset)
			})
		})
	})
	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request", map[string]interface{}{
				"method":    r.Method,
				"path":      r.URL.Path,
				"status":    ww.Status(),
				"duration":  time.Since(start),
				"requestId": middleware.GetReqID(r.Context()),
			})
		})
	}
}
