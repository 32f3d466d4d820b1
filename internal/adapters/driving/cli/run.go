package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/compass-labs/roadsync/internal/core/services"
)

var runRoadmapPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process queued items against a roadmap snapshot",
	Long: `Drives every queued item through mapping and proposal creation.
Items interrupted by an earlier crash resume from their recorded stage.
Interrupting with Ctrl-C stops cleanly; in-flight items fail as
cancelled and stay visible in the ledger.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runRoadmapPath, "roadmap", "", "path to the roadmap snapshot YAML (required)")
	_ = runCmd.MarkFlagRequired("roadmap")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	if pipeline == nil {
		return errors.New("pipeline not configured")
	}

	roadmap, err := services.LoadRoadmapSnapshot(runRoadmapPath)
	if err != nil {
		return fmt.Errorf("loading roadmap: %w", err)
	}
	cmd.Printf("Loaded roadmap snapshot at %s (%d components)\n", roadmap.BaseRevision, len(roadmap.Components))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Run(ctx, roadmap); err != nil {
		if errors.Is(err, context.Canceled) {
			cmd.Println("Run interrupted.")
			return nil
		}
		return fmt.Errorf("run failed: %w", err)
	}

	cmd.Println("Run complete.")
	return nil
}
