package server

import (
	"net/http"
	"strings"

	"github.com/netfabric/fabsync/internal/server/handlers"
	"github.com/netfabric/fabsync/internal/server/middleware"
	"github.com/netfabric/fabsync/internal/server/response"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(
		s.orch,
		s.reg,
		s.fabrics,
		s.repoFor,
		s.webhooks,
		s.logger,
	)

	s.registerRoutes(mux, h)

	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	// Favicon handler (return 204 No Content to avoid 404 logs)
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Public health endpoints (no auth required)
	mux.HandleFunc("/healthz", h.HandleHealth)
	mux.HandleFunc("/readyz", h.HandleReady)
	mux.HandleFunc(prefix+"/healthz", h.HandleHealth)
	mux.HandleFunc(prefix+"/readyz", h.HandleReady)

	// Fabric collection
	mux.HandleFunc(prefix+"/fabrics", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.HandleListFabrics(w, r)
		case http.MethodPost:
			h.HandleCreateFabric(w, r)
		default:
			response.MethodNotAllowed(w, r.Method)
		}
	})

	// Fabric-scoped operations
	mux.HandleFunc(prefix+"/fabrics/", func(w http.ResponseWriter, r *http.Request) {
		parts := splitPath(r.URL.Path[len(prefix+"/fabrics/"):])
		if len(parts) == 0 {
			response.BadRequest(w, "fabric id required", "")
			return
		}
		fabricID := parts[0]

		switch {
		case len(parts) == 1:
			if r.Method == http.MethodGet {
				h.HandleGetFabric(w, r, fabricID)
				return
			}

		case len(parts) == 2 && parts[1] == "sync":
			if r.Method == http.MethodPost {
				h.HandleStartSync(w, r, fabricID)
				return
			}

		case len(parts) == 2 && parts[1] == "sync-operations":
			if r.Method == http.MethodGet {
				h.HandleListOperations(w, r, fabricID)
				return
			}

		case len(parts) == 2 && parts[1] == "conflicts":
			if r.Method == http.MethodGet {
				h.HandleListConflicts(w, r, fabricID)
				return
			}

		case len(parts) == 3 && parts[1] == "directories":
			switch parts[2] {
			case "initialize":
				if r.Method == http.MethodPost {
					h.HandleInitializeDirectories(w, r, fabricID)
					return
				}
			case "validate":
				if r.Method == http.MethodGet {
					h.HandleValidateDirectories(w, r, fabricID)
					return
				}
			case "ingest":
				if r.Method == http.MethodPost {
					h.HandleIngest(w, r, fabricID)
					return
				}
			}
		}

		response.NotFound(w, "not found", r.URL.Path)
	})

	// Sync operation status and cancellation
	mux.HandleFunc(prefix+"/sync-operations/", func(w http.ResponseWriter, r *http.Request) {
		parts := splitPath(r.URL.Path[len(prefix+"/sync-operations/"):])

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			h.HandleGetOperation(w, r, parts[0])
			return
		case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
			h.HandleCancelOperation(w, r, parts[0])
			return
		}

		response.NotFound(w, "not found", r.URL.Path)
	})

	// Conflict resolution
	mux.HandleFunc(prefix+"/conflicts/", func(w http.ResponseWriter, r *http.Request) {
		parts := splitPath(r.URL.Path[len(prefix+"/conflicts/"):])
		if len(parts) == 2 && parts[1] == "resolve" && r.Method == http.MethodPost {
			h.HandleResolveConflict(w, r, parts[0])
			return
		}
		response.NotFound(w, "not found", r.URL.Path)
	})

	// Webhook registrations
	mux.HandleFunc(prefix+"/webhooks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.HandleListWebhooks(w, r)
		case http.MethodPost:
			h.HandleRegisterWebhook(w, r)
		default:
			response.MethodNotAllowed(w, r.Method)
		}
	})
	mux.HandleFunc(prefix+"/webhooks/", func(w http.ResponseWriter, r *http.Request) {
		parts := splitPath(r.URL.Path[len(prefix+"/webhooks/"):])
		if len(parts) == 1 && r.Method == http.MethodDelete {
			h.HandleDeleteWebhook(w, r, parts[0])
			return
		}
		response.NotFound(w, "not found", r.URL.Path)
	})
}

// applyMiddleware wraps handler with the middleware chain, outermost
// first: recovery, access log, then the optional layers.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	mws := []middleware.Middleware{
		middleware.Recovery(s.logger),
		middleware.AccessLog(s.logger),
	}

	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		corsConfig.AllowedOrigins = cfg.CORSOrigins
		mws = append(mws, middleware.CORS(corsConfig))
	}

	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		if cfg.AuthHeader != "" {
			authConfig.HeaderName = cfg.AuthHeader
		}
		mws = append(mws, middleware.Auth(authConfig, s.logger))
	}

	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(middleware.NewLimiter(cfg.RateLimit, s.logger)))
	}

	return middleware.Chain(handler, mws...)
}

// splitPath splits a URL path into parts, removing empty strings.
func splitPath(path string) []string {
	parts := []string{}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
