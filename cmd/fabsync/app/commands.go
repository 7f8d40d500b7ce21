package app

import (
	"github.com/spf13/cobra"

	"github.com/netfabric/fabsync/cmd/fabsync/cmd/conflicts"
	"github.com/netfabric/fabsync/cmd/fabsync/cmd/dirs"
	fabricscmd "github.com/netfabric/fabsync/cmd/fabsync/cmd/fabrics"
	"github.com/netfabric/fabsync/cmd/fabsync/cmd/serve"
	synccmd "github.com/netfabric/fabsync/cmd/fabsync/cmd/sync"
	"github.com/netfabric/fabsync/cmd/fabsync/cmd/version"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Core commands
	rootCmd.AddCommand(synccmd.NewCommand(a))
	rootCmd.AddCommand(conflicts.NewCommand(a))
	rootCmd.AddCommand(serve.NewCommand(a))

	// Management commands
	rootCmd.AddCommand(dirs.NewInitCommand(a))
	rootCmd.AddCommand(dirs.NewValidateCommand(a))
	rootCmd.AddCommand(dirs.NewIngestCommand(a))
	rootCmd.AddCommand(fabricscmd.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(version.NewCommand(a))
}
