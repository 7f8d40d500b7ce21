// Package dirs provides commands for managing a fabric's working-tree
// topology and for ingesting raw resource files.
package dirs

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netfabric/fabsync/internal/appcontext"
	"github.com/netfabric/fabsync/internal/cli/output"
	"github.com/netfabric/fabsync/internal/ingest"
	"github.com/netfabric/fabsync/internal/layout"
)

// NewInitCommand creates the init command using app context.
func NewInitCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init <fabric-id>",
		GroupID: "management",
		Short:   "Create the managed directory topology for a fabric",
		Long: `Init creates the canonical directory tree under the fabric's working
directory: the managed GitOps tree per resource kind, the raw landing
areas for ingestion, and the archive tree.

Existing directories are left alone unless --force is given.`,
		Args: cobra.ExactArgs(1),
		Example: `  fabsync init dc-east
  fabsync init dc-east --force --backup`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			force, _ := cmd.Flags().GetBool("force")
			backup, _ := cmd.Flags().GetBool("backup")

			result, err := client.InitializeDirectories(cmd.Context(), args[0], layout.InitOptions{
				Force:  force,
				Backup: backup,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, dir := range result.Created {
				fmt.Fprintf(out, "created %s\n", dir)
			}
			for _, dir := range result.Existing {
				fmt.Fprintf(out, "exists  %s\n", dir)
			}
			if result.BackupPath != "" {
				fmt.Fprintf(out, "backup  %s\n", result.BackupPath)
			}
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "recreate the tree even when it already exists")
	cmd.Flags().Bool("backup", false, "move an existing tree aside before recreating")

	return cmd
}

// NewValidateCommand creates the validate command using app context.
func NewValidateCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:     "validate <fabric-id>",
		GroupID: "management",
		Short:   "Check a fabric's directory topology without modifying it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			result, err := client.ValidateDirectories(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			format := output.DetectFormat(app.OutputFormat())
			if format == output.FormatJSON || format == output.FormatYAML {
				return output.Print(format, result)
			}

			out := cmd.OutOrStdout()
			for _, dir := range result.Directories {
				if !dir.Exists {
					fmt.Fprintf(out, "missing  %s\n", dir.Path)
				}
			}
			for _, issue := range result.Issues {
				fmt.Fprintf(out, "problem  %s: %s (%s)\n", issue.Path, issue.Problem, issue.Suggestion)
			}
			if !result.Valid {
				return fmt.Errorf("topology for %s is incomplete", args[0])
			}
			fmt.Fprintln(out, "topology OK")
			return nil
		},
	}
}

// NewIngestCommand creates the ingest command using app context.
func NewIngestCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ingest <fabric-id>",
		GroupID: "management",
		Short:   "Process pending raw files into the managed tree",
		Long: `Ingest parses files dropped in raw/pending, validates the resource
documents they contain, writes them into the managed tree, commits the
batch, and archives the source files.

Invalid files are moved to raw/errors with a reason note; with
--strict the whole batch is rejected before anything is written.`,
		Args: cobra.ExactArgs(1),
		Example: `  fabsync ingest dc-east
  fabsync ingest dc-east --pattern "*.yaml" --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			patterns, _ := cmd.Flags().GetStringSlice("pattern")
			strict, _ := cmd.Flags().GetBool("strict")
			noArchive, _ := cmd.Flags().GetBool("no-archive")

			result, err := client.Ingest(cmd.Context(), args[0], ingest.Options{
				Patterns:  patterns,
				Strict:    strict,
				NoArchive: noArchive,
			})
			if err != nil {
				return err
			}

			format := output.DetectFormat(app.OutputFormat())
			if format == output.FormatJSON || format == output.FormatYAML {
				return output.Print(format, result)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d files: %d created, %d updated, %d skipped, %d failed\n",
				len(result.Files), result.Created, result.Updated, result.Skipped, result.Failed)
			return nil
		},
	}

	cmd.Flags().StringSlice("pattern", nil, "glob filters for raw/pending (default *.yaml, *.yml, *.json)")
	cmd.Flags().Bool("strict", false, "abort the whole batch on the first invalid document")
	cmd.Flags().Bool("no-archive", false, "leave processed source files in place")

	return cmd
}
