package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/garyjia/invoice-memory/internal/container"
)

var (
	exportOut  string
	exportSave bool
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "memory.xlsx", "Workbook output path")
	exportCmd.Flags().BoolVar(&exportSave, "save", false, "Save a timestamped snapshot to the report directory instead")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the memory store as an XLSX workbook",
	Long: `Export vendor patterns, correction rules and resolutions as one workbook
with a sheet per memory kind.

Examples:
  memctl export -o memory.xlsx
  memctl export --save`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, app *container.Container) error {
			exporter := app.Services().Exporter

			if exportSave {
				location, err := exporter.SaveSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("failed to save snapshot: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot saved to %s\n", location)
				return nil
			}

			content, err := exporter.BuildWorkbook(ctx)
			if err != nil {
				return fmt.Errorf("failed to build workbook: %w", err)
			}
			if err := os.WriteFile(exportOut, content, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", exportOut, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", exportOut, len(content))
			return nil
		})
	},
}
