package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/cohort/internal/hermes"
)

func init() {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print cohort events from NATS as they arrive",
		Long:  "Subscribe to the cohort subjects on $NATS_URL and print one line per persona, batch failure and finished run.",
		Args:  cobra.NoArgs,
		Run:   runEvents,
	}
	cmd.Flags().String("subject", hermes.SubjectAll, "Subject to subscribe to")

	RootCmd.AddCommand(cmd)
}

func runEvents(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.NatsURL == "" {
		exitErr("events", fmt.Errorf("NATS_URL is not set"))
	}
	subject, _ := cmd.Flags().GetString("subject")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := hermes.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		exitErr("connect", err)
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	err = client.Subscribe(subject, func(subj string, data []byte) {
		fmt.Fprintln(out, hermes.Describe(subj, data))
	})
	if err != nil {
		client.Close()
		exitErr("subscribe", err)
	}
	<-ctx.Done()
}
