// Command roadsync runs the content integration pipeline CLI.
package main

import (
	"context"
	"fmt"
	"os"

	configfile "github.com/compass-labs/roadsync/internal/adapters/driven/config/file"
	"github.com/compass-labs/roadsync/internal/adapters/driven/ledger/sqlite"
	"github.com/compass-labs/roadsync/internal/adapters/driven/llm/anthropic"
	"github.com/compass-labs/roadsync/internal/adapters/driven/notify"
	"github.com/compass-labs/roadsync/internal/adapters/driven/vcs/github"
	"github.com/compass-labs/roadsync/internal/adapters/driving/cli"
	"github.com/compass-labs/roadsync/internal/core/ports/driven"
	"github.com/compass-labs/roadsync/internal/core/services"
	"github.com/compass-labs/roadsync/internal/logger"
	"github.com/compass-labs/roadsync/internal/normalisers"
	"github.com/compass-labs/roadsync/internal/normalisers/markdown"
	"github.com/compass-labs/roadsync/internal/normalisers/plaintext"
	"github.com/compass-labs/roadsync/internal/normalisers/transcript"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := configfile.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store, err := sqlite.NewStore("")
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer store.Close()

	registry := normalisers.NewRegistry()
	registry.Register(plaintext.New())
	registry.Register(markdown.New())
	registry.Register(transcript.New())

	mapper := buildMapper(config)
	builder, vcs := buildBuilder(config)

	var opts []services.CoordinatorOption
	if workers := config.GetInt(configfile.KeyWorkers); workers > 0 {
		opts = append(opts, services.WithWorkers(workers))
	}
	if attempts := config.GetInt(configfile.KeyAttemptCap); attempts > 0 {
		opts = append(opts, services.WithAttemptCap(attempts))
	}

	coordinator := services.NewCoordinator(
		registry,
		store.Items(),
		store.Ledger(),
		mapper,
		builder,
		vcs,
		notify.NewLogNotifier(),
		opts...,
	)

	cli.Setup(coordinator, store.Ledger(), config)
	return cli.Execute()
}

// buildMapper constructs the mapping engine when an Anthropic key is
// configured. Commands that never call the AI work without one.
func buildMapper(config driven.ConfigStore) *services.MappingEngine {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		apiKey = config.GetString(configfile.KeyAnthropicAPIKey)
	}
	if apiKey == "" {
		logger.Debug("no Anthropic API key configured, mapping disabled")
		return nil
	}

	capability, err := anthropic.New(anthropic.Config{
		APIKey: apiKey,
		Model:  config.GetString(configfile.KeyAnthropicModel),
	})
	if err != nil {
		logger.Warn("configuring Anthropic capability: %v", err)
		return nil
	}

	var opts []services.MapperOption
	if threshold := config.GetInt(configfile.KeyConfidenceThreshold); threshold > 0 {
		opts = append(opts, services.WithConfidenceThreshold(threshold))
	}
	return services.NewMappingEngine(capability, opts...)
}

// buildBuilder constructs the proposal builder when the GitHub roadmap
// repository is configured.
func buildBuilder(config driven.ConfigStore) (*services.ProposalBuilder, driven.VCSBackend) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = config.GetString(configfile.KeyGitHubToken)
	}
	owner := config.GetString(configfile.KeyGitHubOwner)
	repo := config.GetString(configfile.KeyGitHubRepo)
	if token == "" || owner == "" || repo == "" {
		logger.Debug("GitHub backend not configured, proposal creation disabled")
		return nil, nil
	}

	backend, err := github.New(context.Background(), github.Config{
		Owner:      owner,
		Repo:       repo,
		BaseBranch: config.GetString(configfile.KeyGitHubBaseBranch),
		Token:      token,
	})
	if err != nil {
		logger.Warn("configuring GitHub backend: %v", err)
		return nil, nil
	}

	return services.NewProposalBuilder(backend, services.WithBaseBranch(backend.BaseBranch())), backend
}
