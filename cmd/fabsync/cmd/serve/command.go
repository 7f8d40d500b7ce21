// Package serve provides the HTTP API server command for the fabsync CLI.
package serve

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/netfabric/fabsync/internal/appcontext"
)

// NewCommand creates the serve command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Start the REST API server",
		Long: `Start the fabsync REST API server.

Features:
  - RESTful endpoints for fabrics, sync operations, and conflicts
  - Directory initialization, validation, and ingestion endpoints
  - Webhook registrations with HMAC-signed async delivery
  - Rate limiting (requests per minute per IP)
  - API key authentication (optional)
  - CORS support for web applications
  - Request logging and panic recovery
  - Graceful shutdown with connection draining`,
		Example: `  # Start on default port 8080
  fabsync serve

  # Start on custom port with authentication
  fabsync serve --port 3000 --auth

  # Enable CORS for specific origins
  fabsync serve --cors-origins "https://example.com,https://app.example.com"

  # Full configuration
  fabsync serve --port 8080 --cors --auth --rate-limit 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, app)
		},
	}

	// Server configuration flags
	cmd.Flags().Int("port", 8080, "Server port")
	cmd.Flags().String("host", "localhost", "Bind address")

	// CORS flags
	cmd.Flags().Bool("cors", false, "Enable CORS for all origins")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (comma-separated)")

	// Authentication flags
	cmd.Flags().Bool("auth", false, "Enable API key authentication")
	cmd.Flags().String("auth-header", "X-API-Key", "Authentication header name")

	// Performance flags
	cmd.Flags().Int("rate-limit", 100, "Requests per minute per IP (0 to disable)")

	// Timeout flags
	cmd.Flags().Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	cmd.Flags().Duration("idle-timeout", 120*time.Second, "HTTP idle timeout")

	cmd.Flags().String("prefix", "/api/v1", "API path prefix")

	return cmd
}
