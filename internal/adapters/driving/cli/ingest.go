package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/watcher"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Submit files to the pipeline",
	Long: `Normalises the given files and records them in the status ledger.
Submitting the same content twice resolves to the same item and does
no duplicate work. Run "roadsync run" afterwards to process them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if pipeline == nil {
		return errors.New("pipeline not configured")
	}

	ctx := context.Background()
	for _, path := range args {
		mimeType, ok := watcher.MIMETypeFor(path)
		if !ok {
			return fmt.Errorf("ingesting %s: %w", path, domain.ErrUnsupportedFormat)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		id, err := pipeline.Submit(ctx, &domain.RawArtifact{
			URI:      path,
			MIMEType: mimeType,
			Data:     data,
		})
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		cmd.Printf("ingested %s as %.12s\n", path, id)
	}
	return nil
}
