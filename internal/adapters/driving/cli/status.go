package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compass-labs/roadsync/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status [item-id]",
	Short: "Show ledger records",
	Long: `Without arguments, lists every item in the ledger with its current
stage. With an item ID, shows the full record including proposals and
the audit trail of stage transitions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if ledgerStore == nil {
		return errors.New("ledger not configured")
	}

	ctx := context.Background()
	if len(args) == 1 {
		return showItem(ctx, cmd, args[0])
	}
	return listItems(ctx, cmd)
}

func listItems(ctx context.Context, cmd *cobra.Command) error {
	recs, err := ledgerStore.List(ctx)
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}
	if len(recs) == 0 {
		cmd.Println("No items in the ledger.")
		return nil
	}

	cmd.Printf("%-14s %-20s %-10s %s\n", "ITEM", "STAGE", "PROPOSALS", "UPDATED")
	for _, rec := range recs {
		stage := string(rec.Stage)
		if rec.Stage == domain.StageFailed && rec.FailedStage != "" {
			stage = fmt.Sprintf("failed(%s)", rec.FailedStage)
		}
		cmd.Printf("%-14.12s %-20s %-10d %s\n",
			rec.ItemID, stage, len(rec.ProposalIDs), rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func showItem(ctx context.Context, cmd *cobra.Command, itemID string) error {
	rec, err := ledgerStore.Get(ctx, itemID)
	if err != nil {
		return fmt.Errorf("loading record: %w", err)
	}

	cmd.Printf("Item:    %s\n", rec.ItemID)
	cmd.Printf("Stage:   %s\n", rec.Stage)
	if rec.Stage == domain.StageFailed {
		cmd.Printf("Failed at: %s\n", rec.FailedStage)
		cmd.Printf("Error:     %s\n", rec.LastError)
	}
	if rec.RetryCount > 0 {
		cmd.Printf("Retries: %d\n", rec.RetryCount)
	}
	if len(rec.ProposalIDs) > 0 {
		superseded := make(map[string]bool, len(rec.SupersededIDs))
		for _, id := range rec.SupersededIDs {
			superseded[id] = true
		}
		cmd.Println("Proposals:")
		for _, id := range rec.ProposalIDs {
			if superseded[id] {
				cmd.Printf("  - %s (superseded)\n", id)
			} else {
				cmd.Printf("  - %s\n", id)
			}
		}
	}

	trail, err := ledgerStore.AuditTrail(ctx, itemID)
	if err != nil {
		return fmt.Errorf("loading audit trail: %w", err)
	}
	if len(trail) > 0 {
		cmd.Println("History:")
		for _, entry := range trail {
			cmd.Printf("  %2d. %-18s -> %-18s %-12s %s\n",
				entry.Seq, entry.FromStage, entry.ToStage, entry.Actor,
				entry.At.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}
