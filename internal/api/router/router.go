package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/crm-voice-sync/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/crm-voice-sync/internal/http/middleware"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	CallWebhooks   *handlers.CallWebhookHandler
	OperatorCalls  *handlers.OperatorCallsHandler
	OperatorSecret string
	MetricsHandler http.Handler
	// RequestTimeout bounds webhook processing via the request context only.
	RequestTimeout time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.CallWebhooks != nil {
			public.Route("/webhooks/calls", func(r chi.Router) {
				if cfg.RequestTimeout > 0 {
					r.Use(withDeadline(cfg.RequestTimeout))
				}
				r.Post("/", cfg.CallWebhooks.Handle)
				r.Get("/", cfg.CallWebhooks.HealthCheck)
			})
		}
	})

	if cfg.OperatorCalls != nil {
		r.Route("/ops", func(ops chi.Router) {
			ops.Use(httpmiddleware.OperatorJWT(cfg.OperatorSecret))
			ops.Get("/calls/{callID}", cfg.OperatorCalls.GetCall)
			ops.Get("/tenants/{tenantID}/activities", cfg.OperatorCalls.ListActivities)
		})
	}

	return r
}

func withDeadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
