// Package fabrics provides commands for listing and inspecting the
// fabrics known to the registry.
package fabrics

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netfabric/fabsync/internal/appcontext"
	"github.com/netfabric/fabsync/internal/cli/output"
)

// NewCommand creates the fabrics command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fabrics [fabric-id]",
		GroupID: "management",
		Short:   "List fabrics known to the registry",
		Args:    cobra.MaximumNArgs(1),
		Example: `  fabsync fabrics            # list all fabrics
  fabsync fabrics dc-east    # show one fabric`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			format := output.DetectFormat(app.OutputFormat())

			if len(args) == 1 {
				fabric, err := client.Registry().GetFabric(ctx, args[0])
				if err != nil {
					return err
				}
				if format == output.FormatTable || format == output.FormatWide {
					format = output.FormatYAML
				}
				return output.Print(format, fabric)
			}

			fabs, err := client.Registry().ListFabrics(ctx)
			if err != nil {
				return err
			}
			if len(fabs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no fabrics configured")
				return nil
			}
			return output.PrintTableOr(format, output.FabricsToTableData(fabs), fabs)
		},
	}
	return cmd
}
