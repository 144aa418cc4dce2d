package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kodexArg/dj-indoor-monitor/config"
	"github.com/kodexArg/dj-indoor-monitor/internal/engine"
	"github.com/kodexArg/dj-indoor-monitor/internal/metrics"
	"github.com/kodexArg/dj-indoor-monitor/internal/services"
	"github.com/kodexArg/dj-indoor-monitor/internal/store"
)

// Dependencies groups the collaborators of the HTTP layer. Cache, Clients,
// Metrics and WebSocket may be nil.
type Dependencies struct {
	Store     store.ReadingStore
	Engine    *engine.Engine
	Ingestor  *services.Ingestor
	Cache     ResponseCache
	Clients   ClientCounter
	Metrics   *metrics.Metrics
	WebSocket http.HandlerFunc
	RateLimit config.RateLimitConfig
}

// SetupRoutes configures all HTTP routes of the indoor monitor API
func SetupRoutes(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(deps.Metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handlers := NewHandlers(deps)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.RateLimit.RPS > 0 {
			r.Use(NewRateLimiter(deps.RateLimit.RPS, deps.RateLimit.Burst).Middleware)
		}

		r.Get("/health", handlers.Health)
		r.Get("/stats", handlers.GetSystemStats)

		r.Route("/sensor-data", func(r chi.Router) {
			r.Get("/", handlers.ListSensorData)
			r.Post("/", handlers.AddSensorData)
			r.Get("/latest", handlers.GetLatestReadings)
			r.Get("/timeframed", handlers.GetTimeframed)

			// Exports of the timeframed rows
			r.Get("/export.xlsx", handlers.ExportExcel)
			r.Get("/export.csv", handlers.ExportCSV)
		})

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", handlers.ListSensors)
			r.Put("/{sensor}/room", handlers.SetSensorRoom)
		})
	})

	r.Handle("/metrics", deps.Metrics.Handler())

	// WebSocket route for live readings
	if deps.WebSocket != nil {
		r.HandleFunc("/ws", deps.WebSocket)
	}

	return r
}
