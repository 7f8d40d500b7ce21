// Package handlers provides HTTP request handlers for the fabsync API.
package handlers

import (
	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/internal/orchestrator"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/internal/server/webhook"
)

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	orch     *orchestrator.Orchestrator
	reg      registry.Registry
	fabrics  orchestrator.FabricSource
	repoFor  orchestrator.RepoFactory
	webhooks *webhook.Dispatcher
	logger   *zerolog.Logger
}

// New creates a new Handlers instance.
func New(
	orch *orchestrator.Orchestrator,
	reg registry.Registry,
	fabrics orchestrator.FabricSource,
	repoFor orchestrator.RepoFactory,
	webhooks *webhook.Dispatcher,
	logger *zerolog.Logger,
) *Handlers {
	return &Handlers{
		orch:     orch,
		reg:      reg,
		fabrics:  fabrics,
		repoFor:  repoFor,
		webhooks: webhooks,
		logger:   logger,
	}
}
