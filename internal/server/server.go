// Package server wires the HTTP router and runs the API server.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"levelup-engine/internal/config"
	"levelup-engine/internal/handler"
)

// Handlers groups the API handlers.
type Handlers struct {
	Webhook *handler.WebhookHandler
	XP      *handler.XPHandler
	Members *handler.MemberHandler
	Rewards *handler.RewardHandler
	Health  *handler.HealthHandler
}

// NewRouter builds the API routes.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health.HandleHealth)

		r.Get("/webhooks", h.Webhook.HandleStatus)
		r.Post("/webhooks", h.Webhook.HandleWebhook)

		r.Post("/xp/grant", h.XP.HandleGrant)
		r.Get("/xp/history", h.XP.HandleHistory)

		r.Get("/members/leaderboard", h.Members.HandleLeaderboard)
		r.Get("/members/leaderboard/stats", h.Members.HandleLeaderboardStats)
		r.Get("/members/{id}", h.Members.HandleProfile)
		r.Get("/members/{id}/badges/{badgeId}/progress", h.Members.HandleBadgeProgress)

		r.Get("/stats/events", h.Members.HandleEventStats)

		r.Post("/rewards/claim", h.Rewards.HandleClaim)
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// Server is the API HTTP server.
type Server struct {
	http    *http.Server
	webhook *handler.WebhookHandler
}

// New creates a new Server instance.
func New(cfg *config.ServerConfig, h *Handlers, gatherer prometheus.Gatherer) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(h, gatherer),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		webhook: h.Webhook,
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then waits for in-flight requests and
// webhook events that are still being processed.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.webhook.Wait(ctx)
}
