package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}

	level := slog.LevelDebug
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			level = slog.LevelDebug
		}
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nlcal",
		Short:         "Turn event descriptions and posters into iCalendar files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd(), newCreateCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("nlcal failed", "error", err)
		os.Exit(1)
	}
}
