package handlers

import (
	"net/http"

	"github.com/netfabric/fabsync/internal/server/response"
)

// HandleHealth handles GET /healthz, the liveness probe.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "fabsync-api",
		"version": "v1",
	})
}

// HandleReady handles GET /readyz. Ready means the registry answers.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	fabricList, err := h.reg.ListFabrics(r.Context())
	if err != nil {
		response.ServiceUnavailable(w, "registry not available")
		return
	}

	response.OK(w, map[string]any{
		"status":   "ready",
		"fabrics":  len(fabricList),
		"webhooks": len(h.webhooks.List()),
	})
}
