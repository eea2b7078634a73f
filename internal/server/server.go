// Package server exposes the agent over HTTP: chat turns, conversation
// reads, health, and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quartermasterhq/quartermaster/internal/agent"
	"github.com/quartermasterhq/quartermaster/internal/conversation"
	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
	"github.com/quartermasterhq/quartermaster/internal/reliability"
	"github.com/quartermasterhq/quartermaster/internal/usage"
)

// Server is the HTTP front end.
type Server struct {
	orchestrator  *agent.Orchestrator
	conversations *conversation.Manager
	breaker       *reliability.Breaker
	provider      llm.Provider
	usage         usage.Store
	gatherer      prometheus.Gatherer
	logger        *observability.Logger

	httpServer *http.Server
}

// Config wires a Server.
type Config struct {
	Addr          string
	Orchestrator  *agent.Orchestrator
	Conversations *conversation.Manager
	Breaker       *reliability.Breaker
	Provider      llm.Provider

	// Usage enables the per-user consumption endpoint when set.
	Usage usage.Store

	Gatherer prometheus.Gatherer
	Logger   *observability.Logger
}

// New creates a server with its routes mounted.
func New(cfg Config) *Server {
	s := &Server{
		orchestrator:  cfg.Orchestrator,
		conversations: cfg.Conversations,
		breaker:       cfg.Breaker,
		provider:      cfg.Provider,
		usage:         cfg.Usage,
		gatherer:      cfg.Gatherer,
		logger:        cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /conversations", s.handleListConversations)
	mux.HandleFunc("GET /conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("POST /conversations/{id}/status", s.handleSetStatus)
	if s.usage != nil {
		mux.HandleFunc("GET /usage", s.handleUsage)
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withRequestContext(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// withRequestContext attaches correlation ids before routing.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithRequestID(r.Context(), newRequestID())
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			ctx = observability.WithUserID(ctx, userID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
