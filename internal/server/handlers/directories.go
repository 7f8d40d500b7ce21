package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/netfabric/fabsync/internal/ingest"
	"github.com/netfabric/fabsync/internal/layout"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/internal/server/response"
)

type initializeRequest struct {
	ForceRecreate  bool `json:"force_recreate"`
	BackupExisting bool `json:"backup_existing"`
}

// HandleInitializeDirectories handles POST /fabrics/{id}/directories/initialize.
func (h *Handlers) HandleInitializeDirectories(w http.ResponseWriter, r *http.Request, fabricID string) {
	var req initializeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body", err.Error())
			return
		}
	}

	fabric, err := h.fabrics.Fabric(r.Context(), fabricID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	result, err := layout.NewManager(fabric, h.logger).Initialize(layout.InitOptions{
		Force:  req.ForceRecreate,
		Backup: req.BackupExisting,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, result)
}

// HandleValidateDirectories handles GET /fabrics/{id}/directories/validate.
func (h *Handlers) HandleValidateDirectories(w http.ResponseWriter, r *http.Request, fabricID string) {
	fabric, err := h.fabrics.Fabric(r.Context(), fabricID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	result, err := layout.NewManager(fabric, h.logger).Validate()
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, result)
}

type ingestRequest struct {
	FilePatterns     []string `json:"file_patterns"`
	ValidationStrict bool     `json:"validation_strict"`
	DisableArchival  bool     `json:"disable_archival"`
}

// HandleIngest handles POST /fabrics/{id}/directories/ingest.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request, fabricID string) {
	var req ingestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body", err.Error())
			return
		}
	}

	fabric, err := h.fabrics.Fabric(r.Context(), fabricID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	pipeline := ingest.NewPipeline(fabric, h.repoFor(fabric), registry.NewIngestRecorder(h.reg), h.logger)
	result, err := pipeline.Ingest(r.Context(), ingest.Options{
		Patterns:  req.FilePatterns,
		Strict:    req.ValidationStrict,
		NoArchive: req.DisableArchival,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, result)
}
