// Package conflicts provides commands for inspecting and resolving
// reconciliation conflicts.
package conflicts

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netfabric/fabsync/internal/appcontext"
	"github.com/netfabric/fabsync/internal/cli/output"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
)

// NewCommand creates the conflicts command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conflicts",
		GroupID: "core",
		Short:   "Inspect and resolve reconciliation conflicts",
		Long: `Conflicts lists divergences that could not be reconciled
automatically and lets an operator settle them with a strategy.

A resolved conflict is written back to the repository, the cluster, and
the registry, and its resolution is recorded in the audit log.`,
	}

	cmd.AddCommand(newListCommand(app))
	cmd.AddCommand(newShowCommand(app))
	cmd.AddCommand(newResolveCommand(app))

	return cmd
}

func newListCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <fabric-id>",
		Short: "List a fabric's conflicts",
		Args:  cobra.ExactArgs(1),
		Example: `  fabsync conflicts list dc-east           # unresolved only
  fabsync conflicts list dc-east --all     # include resolved`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			all, _ := cmd.Flags().GetBool("all")
			conflicts, err := client.Conflicts(cmd.Context(), args[0], !all)
			if err != nil {
				return err
			}
			format := output.DetectFormat(app.OutputFormat())
			return output.PrintTableOr(format, output.ConflictsToTableData(conflicts), conflicts)
		},
	}
	cmd.Flags().Bool("all", false, "include resolved conflicts")
	return cmd
}

func newShowCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "show <fabric-id> <conflict-id>",
		Short: "Show one conflict with its candidate documents and field diffs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			conflicts, err := client.Conflicts(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			for _, c := range conflicts {
				if c.ID == args[1] {
					format := output.DetectFormat(app.OutputFormat())
					if format == output.FormatTable || format == output.FormatWide {
						format = output.FormatYAML
					}
					return output.Print(format, c)
				}
			}
			return fmt.Errorf("conflict %s not found on fabric %s", args[1], args[0])
		},
	}
}

func newResolveCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve a conflict with a strategy",
		Args:  cobra.ExactArgs(1),
		Example: `  # Repository document wins
  fabsync conflicts resolve 4f1c... --strategy source_wins

  # Field-level merge, forcing a value for one field
  fabsync conflicts resolve 4f1c... --strategy merge --decide spec.cidr=10.0.2.0/24

  # Operator supplies the final document
  fabsync conflicts resolve 4f1c... --strategy manual --document fixed.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], app)
		},
	}

	cmd.Flags().String("strategy", "", "resolution strategy: source_wins, target_wins, merge, manual")
	cmd.Flags().StringToString("decide", nil, "forced field value for merge (path=value)")
	cmd.Flags().String("document", "", "YAML file with the final document (manual strategy)")
	cmd.Flags().String("actor", "", "identity recorded in the audit log (default $USER)")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}

func runResolve(cmd *cobra.Command, conflictID string, app appcontext.Interface) error {
	client, err := app.Client()
	if err != nil {
		return err
	}

	strategyFlag, _ := cmd.Flags().GetString("strategy")
	strategy := reconcile.Strategy(strategyFlag)
	if !strategy.Valid() {
		return fmt.Errorf("invalid strategy %q: must be one of: source_wins, target_wins, merge, manual", strategyFlag)
	}

	var decisions reconcile.Decisions
	if decide, _ := cmd.Flags().GetStringToString("decide"); len(decide) > 0 {
		decisions = make(reconcile.Decisions, len(decide))
		for path, value := range decide {
			decisions[path] = value
		}
	}

	var manualDoc *resources.Document
	if docPath, _ := cmd.Flags().GetString("document"); docPath != "" {
		data, err := os.ReadFile(docPath)
		if err != nil {
			return err
		}
		doc, err := resources.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", docPath, err)
		}
		manualDoc = doc
	}

	actor, _ := cmd.Flags().GetString("actor")
	if actor == "" {
		actor = os.Getenv("USER")
	}

	resolved, err := client.Resolve(cmd.Context(), conflictID, strategy, decisions, manualDoc, actor)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "resolved %s on %s with %s\n",
		resolved.Resource, resolved.FabricID, resolved.Resolution.Strategy)
	return nil
}
