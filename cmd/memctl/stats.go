package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/garyjia/invoice-memory/internal/application/service"
	"github.com/garyjia/invoice-memory/internal/container"
)

var statsJSON bool

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output results as JSON")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory counts and learned vendor patterns",
	Long: `Show how many vendor patterns, correction rules and resolutions are stored,
followed by every vendor pattern above the recall floor.

Examples:
  memctl stats
  memctl stats --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, app *container.Container) error {
			stats, err := app.Services().Invoices.GetMemoryStats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get memory stats: %w", err)
			}
			if statsJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			return printStats(cmd.OutOrStdout(), stats)
		})
	},
}

func printStats(out io.Writer, stats *service.MemoryStats) error {
	fmt.Fprintf(out, "Vendor Memory Patterns: %d\n", stats.VendorMemoryCount)
	fmt.Fprintf(out, "Correction Patterns:    %d\n", stats.CorrectionMemoryCount)
	fmt.Fprintf(out, "Resolution History:     %d\n", stats.ResolutionMemoryCount)

	if len(stats.VendorMemory) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VENDOR\tTYPE\tKEY\tCONFIDENCE\tAPPLIED")
	for _, p := range stats.VendorMemory {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\n", p.Vendor, p.Type, p.Key, p.Confidence, p.TimesApplied)
	}
	return w.Flush()
}
