package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/netfabric/fabsync/internal/server/response"
	"github.com/netfabric/fabsync/pkg/fabrics"
)

// HandleListFabrics handles GET /fabrics.
func (h *Handlers) HandleListFabrics(w http.ResponseWriter, r *http.Request) {
	list, err := h.reg.ListFabrics(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, map[string]any{
		"fabrics": list,
		"count":   len(list),
	})
}

// HandleGetFabric handles GET /fabrics/{id}.
func (h *Handlers) HandleGetFabric(w http.ResponseWriter, r *http.Request, fabricID string) {
	fabric, err := h.reg.GetFabric(r.Context(), fabricID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, fabric)
}

// HandleCreateFabric handles POST /fabrics. Credentials are never
// accepted here; they come from the server's configuration.
func (h *Handlers) HandleCreateFabric(w http.ResponseWriter, r *http.Request) {
	var fabric fabrics.Fabric
	if err := json.NewDecoder(r.Body).Decode(&fabric); err != nil {
		response.BadRequest(w, "invalid request body", err.Error())
		return
	}
	if err := fabric.Validate(); err != nil {
		response.FromError(w, err)
		return
	}
	if err := h.reg.SaveFabric(r.Context(), &fabric); err != nil {
		response.FromError(w, err)
		return
	}
	h.logger.Info().Str("fabric", fabric.ID).Msg("fabric registered")
	response.Created(w, fabric)
}
