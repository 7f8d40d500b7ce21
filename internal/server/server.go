// Package server provides the HTTP server for the fabsync API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/internal/orchestrator"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/internal/server/webhook"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	orch      *orchestrator.Orchestrator
	reg       registry.Registry
	fabrics   orchestrator.FabricSource
	repoFor   orchestrator.RepoFactory
	webhooks  *webhook.Dispatcher
	logger    *zerolog.Logger
	config    Config
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// New creates a server around an orchestrator and its stores. The
// webhook dispatcher is created here and should be handed to the
// orchestrator as its event sink before starting operations.
func New(orch *orchestrator.Orchestrator, reg registry.Registry, fabrics orchestrator.FabricSource, repoFor orchestrator.RepoFactory, webhooks *webhook.Dispatcher, logger *zerolog.Logger, cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		orch:      orch,
		reg:       reg,
		fabrics:   fabrics,
		repoFor:   repoFor,
		webhooks:  webhooks,
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Start launches background services: the webhook dispatch loop.
func (s *Server) Start() {
	go s.webhooks.Run(s.ctx)
}

// Handler returns the configured http.Handler with the middleware
// chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// ListenAndServe runs the HTTP server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Shutdown stops background services.
func (s *Server) Shutdown(_ context.Context) error {
	s.logger.Info().Msg("shutting down server background services")
	s.cancel()
	return nil
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}

// Webhooks returns the webhook dispatcher.
func (s *Server) Webhooks() *webhook.Dispatcher {
	return s.webhooks
}
