package main

import (
	"log/slog"
	"os"

	"github.com/MikeSquared-Agency/cohort/internal/cli"
	"github.com/MikeSquared-Agency/cohort/internal/config"
)

func main() {
	envErr := config.LoadDotenv(config.DotenvFile)
	setupLogging(config.Load().LogLevel)
	if envErr != nil {
		slog.Warn("ignoring env file", "error", envErr)
	}

	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
