// Package server assembles the HTTP router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/studiocms/service/internal/config"
	appMiddleware "github.com/studiocms/service/internal/middleware"
	"github.com/studiocms/service/internal/retrieval"
	"github.com/studiocms/service/internal/upload"
)

// Deps are the handlers and settings the router needs.
type Deps struct {
	Config    *config.Config
	Retrieval *retrieval.Handler
	Upload    *upload.Handler
}

// NewRouter wires the gateways, health, metrics and API docs.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(appMiddleware.Metrics)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Fallback"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Retrieval gateway. The bare prefix is routed too so a missing id gets a
	// 400 instead of a 404.
	base := cfg.ProxyBasePath
	r.Get(base, d.Retrieval.ServeFile)
	r.Get(base+"/", d.Retrieval.ServeFile)
	r.Get(base+"/{fileId}", d.Retrieval.ServeFile)
	r.Head(base+"/{fileId}", d.Retrieval.ServeFile)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.UploadJWTSecret != "" {
				r.Use(appMiddleware.RequireAuth(cfg.UploadJWTSecret))
			}
			r.Use(appMiddleware.RateLimit(appMiddleware.RateLimitConfig{
				RequestsPerMinute: cfg.UploadRatePerMinute,
				Burst:             cfg.UploadRateBurst,
			}))
			r.Post("/uploads", d.Upload.Upload)
		})
	})

	return r
}
