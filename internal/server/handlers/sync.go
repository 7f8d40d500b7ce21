package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/netfabric/fabsync/internal/server/response"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

type syncRequest struct {
	Direction          string   `json:"direction"`
	ResourceFilters    []string `json:"resource_filters"`
	ConflictResolution struct {
		Strategy string `json:"strategy"`
	} `json:"conflict_resolution"`
	DryRun         bool `json:"dry_run"`
	TimeoutSeconds int  `json:"timeout_seconds"`
}

// HandleStartSync handles POST /fabrics/{id}/sync. The operation runs
// asynchronously; the response carries the operation id plus status and
// cancel URLs for polling.
func (h *Handlers) HandleStartSync(w http.ResponseWriter, r *http.Request, fabricID string) {
	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body", err.Error())
			return
		}
	}

	var optFns []syncop.Option
	if req.Direction != "" {
		optFns = append(optFns, syncop.WithDirection(syncop.Direction(req.Direction)))
	}
	if len(req.ResourceFilters) > 0 {
		refs := make([]resources.Ref, 0, len(req.ResourceFilters))
		for _, raw := range req.ResourceFilters {
			ref, err := resources.ParseRef(raw)
			if err != nil {
				response.BadRequest(w, "invalid resource filter", raw)
				return
			}
			refs = append(refs, ref)
		}
		optFns = append(optFns, syncop.WithFilters(refs...))
	}
	if req.ConflictResolution.Strategy != "" {
		optFns = append(optFns, syncop.WithStrategy(reconcile.Strategy(req.ConflictResolution.Strategy)))
	}
	if req.DryRun {
		optFns = append(optFns, syncop.WithDryRun(true))
	}
	if req.TimeoutSeconds > 0 {
		optFns = append(optFns, syncop.WithTimeout(time.Duration(req.TimeoutSeconds)*time.Second))
	}

	snap, err := h.orch.Start(r.Context(), fabricID, syncop.NewOptions(optFns...))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Accepted(w, map[string]any{
		"operation_id": snap.ID,
		"phase":        snap.Phase,
		"status_url":   "/api/v1/sync-operations/" + snap.ID,
		"cancel_url":   "/api/v1/sync-operations/" + snap.ID + "/cancel",
	})
}

// HandleGetOperation handles GET /sync-operations/{id}.
func (h *Handlers) HandleGetOperation(w http.ResponseWriter, r *http.Request, operationID string) {
	snap, err := h.orch.Get(r.Context(), operationID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, snap)
}

// HandleListOperations handles GET /fabrics/{id}/sync-operations.
func (h *Handlers) HandleListOperations(w http.ResponseWriter, r *http.Request, fabricID string) {
	snaps, err := h.orch.List(r.Context(), fabricID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, map[string]any{
		"operations": snaps,
		"count":      len(snaps),
	})
}

// HandleCancelOperation handles POST /sync-operations/{id}/cancel.
func (h *Handlers) HandleCancelOperation(w http.ResponseWriter, r *http.Request, operationID string) {
	if err := h.orch.Cancel(r.Context(), operationID); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, map[string]any{
		"operation_id": operationID,
		"cancelled":    true,
	})
}
