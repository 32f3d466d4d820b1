// Package cli implements the roadsync command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/compass-labs/roadsync/internal/core/ports/driven"
	"github.com/compass-labs/roadsync/internal/core/ports/driving"
	"github.com/compass-labs/roadsync/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services injected by Setup. Commands check for nil so the CLI fails
// with a clear message instead of a panic when wiring is incomplete.
var (
	pipeline    driving.Pipeline
	ledgerStore driven.LedgerStore
	configStore driven.ConfigStore
)

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "roadsync",
	Short: "Content integration pipeline for roadmap repositories",
	Long: `roadsync ingests documents, transcripts and notes, maps them onto
roadmap components with an AI capability, and turns accepted mappings
into reviewable version-control change proposals.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
}

// Setup injects the services the commands depend on.
func Setup(p driving.Pipeline, ledger driven.LedgerStore, config driven.ConfigStore) {
	pipeline = p
	ledgerStore = ledger
	configStore = config
}

// SetVersion overrides the reported version.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
