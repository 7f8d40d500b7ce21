package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/netfabric/fabsync/internal/server/response"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
)

// HandleListConflicts handles GET /fabrics/{id}/conflicts. By default
// only unresolved conflicts are returned; ?all=true includes history.
func (h *Handlers) HandleListConflicts(w http.ResponseWriter, r *http.Request, fabricID string) {
	includeResolved := r.URL.Query().Get("all") == "true"

	conflicts, err := h.orch.Conflicts(r.Context(), fabricID, !includeResolved)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, map[string]any{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

type resolveRequest struct {
	Strategy      string              `json:"strategy"`
	UserDecisions reconcile.Decisions `json:"user_decisions"`
	Document      *resources.Document `json:"document"`
	Actor         string              `json:"actor"`
}

// HandleResolveConflict handles POST /conflicts/{id}/resolve.
func (h *Handlers) HandleResolveConflict(w http.ResponseWriter, r *http.Request, conflictID string) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err.Error())
		return
	}
	strategy := reconcile.Strategy(req.Strategy)
	if !strategy.Valid() {
		response.BadRequest(w, "invalid strategy", req.Strategy)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	conflict, err := h.orch.ResolveConflict(r.Context(), conflictID, strategy, req.UserDecisions, req.Document, actor)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, conflict)
}
