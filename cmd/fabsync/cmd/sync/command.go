// Package sync provides the sync command for triggering and watching
// reconciliation operations.
package sync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netfabric/fabsync/internal/appcontext"
	"github.com/netfabric/fabsync/internal/cli/output"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

// NewCommand creates the sync command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync <fabric-id>",
		GroupID: "core",
		Short:   "Reconcile a fabric across repository, registry, and cluster",
		Long: `Sync runs one reconciliation operation for a fabric: it loads the
managed tree, fetches live cluster state, detects divergence per
resource, applies what reconciles cleanly, and parks true conflicts.

Only one operation may run per fabric at a time; a second sync against
a busy fabric is rejected.`,
		Args: cobra.ExactArgs(1),
		Example: `  # Bidirectional sync, wait for the result
  fabsync sync dc-east

  # Push repository state to the cluster only
  fabsync sync dc-east --direction repo-to-cluster

  # Preview without writing anything
  fabsync sync dc-east --dry-run

  # Resolve conflicts automatically, repository wins
  fabsync sync dc-east --strategy source_wins

  # Restrict to specific resources
  fabsync sync dc-east --filter VPC/prod --filter Subnet/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args[0], app)
		},
	}

	cmd.Flags().String("direction", "", "sync direction: bidirectional, repo-to-cluster, cluster-to-repo")
	cmd.Flags().StringSlice("filter", nil, "restrict to resources (Kind/name; empty name matches the kind)")
	cmd.Flags().String("strategy", "", "auto-resolution strategy: source_wins, target_wins, merge")
	cmd.Flags().Bool("dry-run", false, "detect and report without writing")
	cmd.Flags().Duration("timeout", 0, "bound the whole operation (0 = none)")
	cmd.Flags().Bool("no-wait", false, "start the operation and return immediately")

	cmd.AddCommand(newOperationsCommand(app))
	cmd.AddCommand(newStatusCommand(app))
	cmd.AddCommand(newCancelCommand(app))

	return cmd
}

func runSync(cmd *cobra.Command, fabricID string, app appcontext.Interface) error {
	client, err := app.Client()
	if err != nil {
		return err
	}

	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	snap, err := client.Sync(ctx, fabricID, opts)
	if err != nil {
		return err
	}

	noWait, _ := cmd.Flags().GetBool("no-wait")
	if noWait {
		fmt.Fprintf(cmd.OutOrStdout(), "started operation %s\n", snap.ID)
		return nil
	}

	result, err := client.WaitForSync(ctx, snap.ID)
	if err != nil {
		return err
	}

	format := output.DetectFormat(app.OutputFormat())
	if format == output.FormatJSON || format == output.FormatYAML {
		return output.Print(format, result)
	}

	fmt.Fprint(cmd.OutOrStdout(), result.Summary())
	if !result.Success() && result.Failure != "" {
		return fmt.Errorf("sync %s: %s", result.Phase, result.Failure)
	}
	return nil
}

func buildOptions(cmd *cobra.Command) (*syncop.Options, error) {
	var opts []syncop.Option

	if direction, _ := cmd.Flags().GetString("direction"); direction != "" {
		opts = append(opts, syncop.WithDirection(syncop.Direction(direction)))
	}

	if filters, _ := cmd.Flags().GetStringSlice("filter"); len(filters) > 0 {
		refs := make([]resources.Ref, 0, len(filters))
		for _, f := range filters {
			ref, err := resources.ParseRef(f)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
		opts = append(opts, syncop.WithFilters(refs...))
	}

	if strategy, _ := cmd.Flags().GetString("strategy"); strategy != "" {
		opts = append(opts, syncop.WithStrategy(reconcile.Strategy(strategy)))
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		opts = append(opts, syncop.WithDryRun(true))
	}

	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		opts = append(opts, syncop.WithTimeout(timeout))
	}

	built := syncop.NewOptions(opts...)
	if err := built.Validate(); err != nil {
		return nil, err
	}
	return built, nil
}

func newOperationsCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "operations <fabric-id>",
		Short: "List a fabric's sync operation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			ops, err := client.Operations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			format := output.DetectFormat(app.OutputFormat())
			return output.PrintTableOr(format, output.OperationsToTableData(ops), ops)
		},
	}
}

func newStatusCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "status <operation-id>",
		Short: "Show the current state of a sync operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			snap, err := client.Operation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			format := output.DetectFormat(app.OutputFormat())
			if format == output.FormatTable || format == output.FormatWide {
				format = output.FormatYAML
			}
			return output.Print(format, snap)
		},
	}
}

func newCancelCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <operation-id>",
		Short: "Request cancellation of a running sync operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			if err := client.CancelSync(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for %s\n", args[0])
			return nil
		},
	}
}
