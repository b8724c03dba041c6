// Offline subcommands operating directly on the data directory, without a
// running daemon. A live daemon notices the rewritten snapshot via its data
// directory watch.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docforest/docforest/internal/server"
	"github.com/docforest/docforest/internal/storage"
)

func openApp(ctx context.Context, flags *rootFlags) (*server.App, error) {
	cfg, err := storage.LoadConfig(flags.dataDir)
	if err != nil {
		return nil, err
	}
	return server.NewApp(ctx, flags.dataDir, cfg)
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	var output string
	var schema bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full tree and all payloads as one archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			var v any
			if schema {
				v = app.Archive.Schema()
			} else {
				archive, err := app.Archive.ExportAll(cmd.Context())
				if err != nil {
					return err
				}
				v = archive
			}
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode archive: %w", err)
			}
			data = append(data, '\n')
			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o600)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&schema, "schema", false, "Print the archive JSON Schema instead of exporting")
	return cmd
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive.json>",
		Short: "Import an archive, replacing the current tree wholesale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0]) //nolint:gosec // G304: explicit user-provided path
			if err != nil {
				return err
			}
			app, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			if err := app.Archive.ImportAll(cmd.Context(), raw); err != nil {
				return err
			}
			fmt.Printf("Imported %d nodes\n", app.Forest.Count())
			return nil
		},
	}
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the selected storage tier and per-entry usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			usage, err := app.Blobs.Usage(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Tier: %s\nNodes: %d\nTotal: %d bytes\n\n", usage.Tier, app.Forest.Count(), usage.TotalBytes)
			tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tWRITTEN")
			for _, e := range usage.Entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Key, e.Size, e.Timestamp.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}
