package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/invoice-memory/internal/container"
)

var resetConfirm bool

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "Confirm deletion of all learned memory")
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all learned memory, processed invoices and audit entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirm {
			return errors.New("refusing to reset without --yes")
		}
		return withContainer(cmd, func(ctx context.Context, app *container.Container) error {
			if err := app.Services().Invoices.ClearAllMemory(ctx); err != nil {
				return fmt.Errorf("failed to clear memory: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Memory cleared")
			return nil
		})
	},
}
