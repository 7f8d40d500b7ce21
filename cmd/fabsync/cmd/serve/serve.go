package serve

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/netfabric/fabsync/internal/appcontext"
	"github.com/netfabric/fabsync/internal/cluster"
	"github.com/netfabric/fabsync/internal/config"
	"github.com/netfabric/fabsync/internal/gitrepo"
	"github.com/netfabric/fabsync/internal/orchestrator"
	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/internal/server"
	"github.com/netfabric/fabsync/internal/server/webhook"
	"github.com/netfabric/fabsync/pkg/fabrics"
)

// runServer wires the stores, orchestrator, and webhook dispatcher and
// runs the HTTP server until the command context is cancelled.
func runServer(cmd *cobra.Command, app appcontext.Interface) error {
	appCfg := app.Config()
	logger := app.Logger()

	// Stores: shared registry plus the credential-overlaying source.
	var reg registry.Registry
	if appCfg.RegistryPath != "" {
		r, err := registry.OpenSQLite(appCfg.RegistryPath)
		if err != nil {
			return err
		}
		reg = r
	} else {
		reg = registry.NewMemory()
	}
	defer reg.Close()

	src := config.NewSource(reg, appCfg)
	if err := src.Seed(cmd.Context()); err != nil {
		return err
	}

	repoFor := func(f *fabrics.Fabric) gitrepo.Client {
		return gitrepo.NewExecClient(f, logger)
	}
	clusterFor := func(f *fabrics.Fabric) cluster.Adapter {
		return cluster.NewHTTP(f, logger)
	}

	// Webhook dispatcher doubles as the orchestrator's event sink.
	webhooks := webhook.NewDispatcher(logger)
	orch := orchestrator.New(reg, src, repoFor, clusterFor, logger,
		orchestrator.WithEvents(webhooks))

	srvCfg, err := serverConfig(cmd, appCfg)
	if err != nil {
		return err
	}

	srv := server.New(orch, reg, src, repoFor, webhooks, logger, srvCfg)
	srv.Start()
	defer func() { _ = srv.Shutdown(cmd.Context()) }()

	return srv.ListenAndServe(cmd.Context())
}

// serverConfig builds the server config from flags, falling back to the
// application configuration for anything not set on the command line.
func serverConfig(cmd *cobra.Command, appCfg *config.Config) (server.Config, error) {
	cfg := server.DefaultConfig()

	cfg.Host, _ = cmd.Flags().GetString("host")
	cfg.Port, _ = cmd.Flags().GetInt("port")
	cfg.PathPrefix, _ = cmd.Flags().GetString("prefix")

	corsEnabled, _ := cmd.Flags().GetBool("cors")
	corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
	cfg.CORSEnabled = corsEnabled || len(corsOrigins) > 0 || appCfg.CORSEnabled
	if len(corsOrigins) > 0 {
		cfg.CORSOrigins = corsOrigins
	} else if len(appCfg.CORSOrigins) > 0 {
		cfg.CORSOrigins = appCfg.CORSOrigins
	}

	cfg.AuthEnabled, _ = cmd.Flags().GetBool("auth")
	cfg.AuthHeader, _ = cmd.Flags().GetString("auth-header")
	if cfg.AuthEnabled && appCfg.APIKey == "" && os.Getenv("FABSYNC_API_KEY") == "" {
		return cfg, errors.New("--auth requires an API key in FABSYNC_API_KEY or the config file")
	}

	cfg.RateLimit, _ = cmd.Flags().GetInt("rate-limit")
	cfg.ReadTimeout, _ = cmd.Flags().GetDuration("read-timeout")
	cfg.WriteTimeout, _ = cmd.Flags().GetDuration("write-timeout")
	cfg.IdleTimeout, _ = cmd.Flags().GetDuration("idle-timeout")

	if !cmd.Flags().Changed("host") && appCfg.Host != "" {
		cfg.Host = appCfg.Host
	}
	if !cmd.Flags().Changed("port") && appCfg.Port != 0 {
		cfg.Port = appCfg.Port
	}
	if !cmd.Flags().Changed("rate-limit") && appCfg.RateLimit != 0 {
		cfg.RateLimit = appCfg.RateLimit
	}

	return cfg, nil
}
