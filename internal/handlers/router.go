package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/akagifreeez/apikeys/internal/metrics"
	"github.com/akagifreeez/apikeys/internal/services"
)

// RouterConfig holds everything NewRouter wires together.
type RouterConfig struct {
	Keys          KeyService
	Usage         *UsageHandler
	Events        *services.EventHub
	Auth          *Auth
	RevealLimiter *RevealLimiter
	InternalToken string
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	keyHandler := NewKeyHandler(cfg.Keys)

	r.Route("/api/keys", func(r chi.Router) {
		// Long-lived, so no request timeout.
		if cfg.Events != nil {
			r.With(cfg.Auth.QueryTokenMiddleware).Get("/events", NewEventsHandler(cfg.Events).Stream)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(cfg.Auth.Middleware)

			r.Get("/", keyHandler.ListKeys)
			r.Post("/", keyHandler.CreateKey)

			r.Route("/{id}", func(r chi.Router) {
				if cfg.RevealLimiter != nil {
					r.With(cfg.RevealLimiter.Handler).Get("/", keyHandler.RevealKey)
				} else {
					r.Get("/", keyHandler.RevealKey)
				}
				r.Put("/", keyHandler.UpdateKey)
				r.Delete("/", keyHandler.DeleteKey)
				r.Get("/quota", keyHandler.GetQuota)
			})
		})
	})

	if cfg.Usage != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(InternalTokenMiddleware(cfg.InternalToken))
			r.Post("/internal/usage", cfg.Usage.RecordUsage)
		})
	}

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Internal-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
