package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/cohort/internal/config"
	"github.com/MikeSquared-Agency/cohort/internal/processor"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate personas from a survey and interview documents",
		Long: "Partition the survey into batches, run one agent conversation per batch, and write the " +
			"transcript, the personas and a run report into the output directory. With no survey, " +
			"every document is processed as its own batch.",
		Args: cobra.NoArgs,
		Run:  runRun,
	}

	cmd.Flags().StringP("dataset", "i", "", "Survey CSV file")
	cmd.Flags().StringSliceP("doc", "D", nil, "Interview document (.md, .txt, .pdf); repeatable")
	cmd.Flags().StringP("out", "o", "", "Output directory (default: $COHORT_OUTPUT_DIR)")
	cmd.Flags().Int("chunk-size", 0, "Records per batch")
	cmd.Flags().Int("concurrency", 0, "Batches run at once")
	cmd.Flags().Int("max-turns", 0, "Agent turns per batch")
	cmd.Flags().Duration("chunk-timeout", 0, "Time limit per batch")
	cmd.Flags().String("validity", "", "Persona validation: strict or lenient")
	cmd.Flags().StringP("format", "f", "", "Persona output: json, zip or text")
	cmd.Flags().String("stream-file", "", "Also append personas to this file as they arrive")
	cmd.Flags().String("stream-format", "", "Stream file format: json or text")

	RootCmd.AddCommand(cmd)
}

// applyRunFlags overrides cfg with every flag the user set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.OutputDir, _ = flags.GetString("out")
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("max-turns") {
		cfg.MaxTurns, _ = flags.GetInt("max-turns")
	}
	if flags.Changed("chunk-timeout") {
		cfg.ChunkTimeout, _ = flags.GetDuration("chunk-timeout")
	}
	if flags.Changed("validity") {
		cfg.Validity, _ = flags.GetString("validity")
	}
	if flags.Changed("format") {
		cfg.PersonaFormat, _ = flags.GetString("format")
	}
	if flags.Changed("stream-file") {
		cfg.StreamFile, _ = flags.GetString("stream-file")
	}
	if flags.Changed("stream-format") {
		cfg.StreamFormat, _ = flags.GetString("stream-format")
	}
}

func runRun(cmd *cobra.Command, args []string) {
	datasetPath, _ := cmd.Flags().GetString("dataset")
	docs, _ := cmd.Flags().GetStringSlice("doc")

	cfg := loadConfig()
	applyRunFlags(cmd, &cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	proc, cleanup, err := newProcessor(ctx, cfg, logger)
	if err != nil {
		exitErr("setup", err)
	}

	out, err := proc.Run(ctx, processor.Job{DatasetPath: datasetPath, DocumentPaths: docs})
	cleanup()
	if out == nil {
		exitErr("run", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderRunSummary(out))
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "run interrupted; partial results were written")
		os.Exit(130)
	case err != nil:
		exitErr("run", err)
	}
}
