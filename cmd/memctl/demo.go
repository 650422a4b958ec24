package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyjia/invoice-memory/internal/application/service"
	"github.com/garyjia/invoice-memory/internal/container"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

//go:embed demo_data.json
var demoDataJSON []byte

// demoData is the three-vendor scenario replayed by the demo command
type demoData struct {
	Invoices       []entity.Invoice         `json:"invoices"`
	Corrections    []entity.HumanCorrection `json:"corrections"`
	PurchaseOrders []entity.PurchaseOrder   `json:"purchaseOrders"`
	DeliveryNotes  []entity.DeliveryNote    `json:"deliveryNotes"`
}

var demoKeep bool

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().BoolVar(&demoKeep, "keep", false, "Do not clear existing memory before the run")
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Replay the learning scenario and show decisions before and after",
	Long: `Process six invoices from three vendors without memory, apply five human
corrections, then process the same invoices again with the learned memory.

The demo clears the configured store first unless --keep is given. Use
--driver memory to run it without touching a database.

Examples:
  memctl demo --driver memory
  memctl demo --config configs/config.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := loadDemoData()
		if err != nil {
			return err
		}
		return withContainer(cmd, func(ctx context.Context, app *container.Container) error {
			return runDemo(ctx, cmd.OutOrStdout(), app.Services().Invoices, data, !demoKeep)
		})
	},
}

func loadDemoData() (*demoData, error) {
	var data demoData
	if err := json.Unmarshal(demoDataJSON, &data); err != nil {
		return nil, fmt.Errorf("failed to parse demo data: %w", err)
	}
	return &data, nil
}

func runDemo(ctx context.Context, out io.Writer, invoices service.InvoiceService, data *demoData, reset bool) error {
	banner(out, "INVOICE MEMORY - LEARNING DEMO")

	if reset {
		fmt.Fprintln(out, "[STEP 1] Clearing existing memory")
		if err := invoices.ClearAllMemory(ctx); err != nil {
			return fmt.Errorf("failed to clear memory: %w", err)
		}
	}

	fmt.Fprintln(out, "\n[STEP 2] Processing invoices without learned memory")
	if err := processAll(ctx, out, invoices, data); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n[STEP 3] Applying human corrections")
	for i := range data.Corrections {
		correction := data.Corrections[i]
		fmt.Fprintf(out, "\n--- Learning from %s (%d corrections) ---\n", correction.InvoiceID, len(correction.Corrections))

		updates, err := invoices.ApplyHumanCorrectionForStored(ctx, &correction)
		if err != nil {
			return fmt.Errorf("failed to apply correction for %s: %w", correction.InvoiceID, err)
		}
		for _, update := range updates {
			fmt.Fprintf(out, "   + %s\n", update)
		}
	}

	fmt.Fprintln(out, "\n[STEP 4] Re-processing invoices with learned memory")
	if err := processAll(ctx, out, invoices, data); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n[STEP 5] Memory statistics")
	stats, err := invoices.GetMemoryStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get memory stats: %w", err)
	}
	if err := printStats(out, stats); err != nil {
		return err
	}

	banner(out, "DEMO COMPLETE")
	return nil
}

func processAll(ctx context.Context, out io.Writer, invoices service.InvoiceService, data *demoData) error {
	for i := range data.Invoices {
		invoice := data.Invoices[i]
		fmt.Fprintf(out, "\n--- %s (%s) ---\n", invoice.InvoiceID, invoice.Vendor)

		result, err := invoices.ProcessInvoice(ctx, &invoice, data.PurchaseOrders, data.DeliveryNotes)
		if err != nil {
			return fmt.Errorf("failed to process %s: %w", invoice.InvoiceID, err)
		}

		fmt.Fprintf(out, "   Requires Review: %t\n", result.RequiresHumanReview)
		fmt.Fprintf(out, "   Confidence: %.2f\n", result.ConfidenceScore)
		fmt.Fprintf(out, "   Reasoning: %s\n", truncate(result.Reasoning, 150))
		for _, proposed := range result.ProposedCorrections {
			fmt.Fprintf(out, "      - %s\n", proposed)
		}
	}
	return nil
}

func banner(out io.Writer, title string) {
	line := strings.Repeat("=", 40)
	fmt.Fprintf(out, "\n%s\n%s\n%s\n", line, title, line)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
