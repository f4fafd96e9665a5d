// Package cli implements the cohort commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/cohort/internal/config"
	"github.com/MikeSquared-Agency/cohort/internal/hermes"
	"github.com/MikeSquared-Agency/cohort/internal/llm"
	"github.com/MikeSquared-Agency/cohort/internal/processor"
	"github.com/MikeSquared-Agency/cohort/internal/slack"
	"github.com/MikeSquared-Agency/cohort/internal/store"
)

var teamFile string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "cohort",
	Short: "Synthesize learner personas from surveys and interviews",
	Long: "cohort partitions a survey into batches, runs a multi-agent LLM conversation per batch, " +
		"and collects the persona records the agents produce. Settings come from COHORT_* environment variables; flags override them.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&teamFile, "team", "", "Agent roster file, YAML or TOML (default: $COHORT_TEAM_FILE or the built-in roster)")
}

// loadConfig reads the environment and applies the flags shared by every command.
func loadConfig() config.Config {
	cfg := config.Load()
	if teamFile != "" {
		cfg.TeamFile = teamFile
	}
	return cfg
}

// newProcessor builds the model and every optional collaborator cfg enables.
// The returned func releases them.
func newProcessor(ctx context.Context, cfg config.Config, logger *slog.Logger) (*processor.Processor, func(), error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	model, err := llm.New(llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("model client: %w", err)
	}
	roster, err := config.LoadTeam(cfg.TeamFile)
	if err != nil {
		return nil, nil, err
	}

	deps := processor.Deps{
		Model: llm.WithRetry(model, cfg.ModelRetries, logger),
		Team:  roster,
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}
		closers = append(closers, st.Close)
		deps.Store = st
		logger.Info("archive connected")
	}

	if cfg.NatsURL != "" {
		client, err := hermes.NewClient(cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, client.Close)
		deps.Events = hermes.NewEmitter(client, logger)
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	var poster *slack.Poster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		poster = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)
	}
	deps.Notifier = slack.NewNotifier(poster, logger)

	logger.Info("model client ready", "provider", cfg.Provider, "model", model.Name())
	return processor.New(cfg, deps, logger), cleanup, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
