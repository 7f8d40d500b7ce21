package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/netfabric/fabsync/internal/server/response"
	"github.com/netfabric/fabsync/internal/server/webhook"
)

// HandleListWebhooks handles GET /webhooks.
func (h *Handlers) HandleListWebhooks(w http.ResponseWriter, _ *http.Request) {
	regs := h.webhooks.List()
	response.OK(w, map[string]any{
		"webhooks": regs,
		"count":    len(regs),
	})
}

type webhookRequest struct {
	URL    string              `json:"url"`
	Secret string              `json:"secret"`
	Events []webhook.EventType `json:"events"`
}

// HandleRegisterWebhook handles POST /webhooks.
func (h *Handlers) HandleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err.Error())
		return
	}

	reg, err := webhook.NewRegistration(req.URL, req.Secret, req.Events)
	if err != nil {
		response.FromError(w, err)
		return
	}
	h.webhooks.Register(reg)
	response.Created(w, reg)
}

// HandleDeleteWebhook handles DELETE /webhooks/{id}.
func (h *Handlers) HandleDeleteWebhook(w http.ResponseWriter, _ *http.Request, id string) {
	if err := h.webhooks.Unregister(id); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, map[string]any{"deleted": id})
}
