package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nlcal/src-server/handler"
	"nlcal/src-server/metric"
	"nlcal/src-server/route"
	"nlcal/src-server/scheduler"
	"nlcal/src-server/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
)

const (
	pruneInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Discord bot and the background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	config, err := utils.NewConfig()
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	// There are 2 important things (and others) inside the AppState:
	// - AppCmdInfo: a map of all slash commands
	// - AppCmdHandler: a map of all slash command handlers
	as := utils.NewAppState(config)
	defer as.GracefulShutdown()

	if err := as.OpenDatabase(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if config.GetDiscordAppToken() != "" {
		if err := startDiscord(as); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	metric.Init(as)
	go scheduler.PruneHistory(as, pruneInterval)

	// http server
	muxer := http.NewServeMux()
	route.Metrics(muxer)
	route.Events(muxer, as)
	route.Ical(muxer, as)
	server := &http.Server{
		Addr:              ":" + config.GetPort(),
		Handler:           muxer,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()
	slog.Info("app is now running, press Ctrl+C to exit", "port", config.GetPort())

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	select {
	case <-signalCtx.Done():
	case err := <-serverErrCh:
		slog.Error("cannot start HTTP server", "error", err)
	}

	slog.Info("Gracefully shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("can't shut down HTTP server", "error", err)
	}
	return nil
}

func startDiscord(as *utils.AppState) error {
	var err error
	as.DgSession, err = discordgo.New("Bot " + as.Config.GetDiscordAppToken())
	if err != nil {
		return fmt.Errorf("startDiscord: %w", err)
	}

	// injecting interaction handlers into AppCmdInfo, AppCmdHandler in AppState
	handler.CreateCalendar(as)
	handler.Ping(as)

	// tell discordgo how to handle interactions from Discord (w/ AppCmdHandler)
	as.DgSession.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			slog.Debug("ignoring interaction", "type", i.Type)
			return
		}
		id := i.ApplicationCommandData().Name
		cmdHandler, ok := as.GetAppCmdHandler(id)
		if !ok {
			utils.InteractRespHiddenReply(s, i, "Unknown command")
			return
		}
		if err := cmdHandler(s, i); err != nil {
			slog.Error("handler error", "command", id, "error", err.Error())
		}
	})

	// open a connection to Discord
	if err := as.DgSession.Open(); err != nil {
		return fmt.Errorf("startDiscord: can't open connection: %w", err)
	}

	// tell Discord what commands we have (w/ AppCmdInfo)
	if _, err := as.DgSession.ApplicationCommandBulkOverwrite(
		as.Config.GetDiscordClientId(),
		as.Config.GetDiscordGuildID(),
		as.AppCmds(),
	); err != nil {
		slog.Error("can't create slash commands", "error", err.Error())
	}
	slog.Info("discord bot is running", "guilds", len(as.DgSession.State.Guilds))
	return nil
}
