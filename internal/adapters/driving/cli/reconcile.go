package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Poll review outcomes and close resolved items",
	Long: `Checks the review state of every proposal belonging to items
awaiting review and closes resolved items in the ledger.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	if pipeline == nil {
		return errors.New("pipeline not configured")
	}

	if err := pipeline.Reconcile(context.Background()); err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	cmd.Println("Reconcile complete.")
	return nil
}
