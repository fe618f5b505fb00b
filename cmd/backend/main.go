package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	configloader "github.com/foxseedlab/dmzstatus/external/config"
	"github.com/foxseedlab/dmzstatus/external/discord"
	"github.com/foxseedlab/dmzstatus/external/liveness"
	repositoryimpl "github.com/foxseedlab/dmzstatus/external/repository"
	"github.com/foxseedlab/dmzstatus/internal/activity"
	"github.com/foxseedlab/dmzstatus/internal/config"
	discordpkg "github.com/foxseedlab/dmzstatus/internal/discord"
	"github.com/foxseedlab/dmzstatus/internal/presence"
	"github.com/foxseedlab/dmzstatus/internal/repository"
	"github.com/foxseedlab/dmzstatus/internal/status"
	"github.com/samber/do/v2"
)

const (
	discordConnectTimeout = 20 * time.Second
	bootstrapTimeout      = 60 * time.Second
	shutdownTimeout       = 10 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "storage_backend", cfg.StorageBackend)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching discord bot")
	runBot(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue[quartz.Clock](injector, quartz.NewReal())
	repositoryimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	liveness.RegisterDI(injector)
	activity.RegisterDI(injector)
	status.RegisterDI(injector)
	presence.RegisterDI(injector)

	return injector
}

func runBot(cfg *config.Config, injector do.Injector) {
	repo, err := do.Invoke[repository.Repository](injector)
	if err != nil {
		slog.Error("failed to open repository", "error", err, "storage_backend", cfg.StorageBackend)
		os.Exit(1)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			slog.Error("repository close failed", "error", err)
		}
	}()
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		slog.Error("failed to resolve discord client", "error", err)
		os.Exit(1)
	}
	manager, err := do.Invoke[*presence.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve presence manager", "error", err)
		os.Exit(1)
	}
	board, err := do.Invoke[*status.Board](injector)
	if err != nil {
		slog.Error("failed to resolve status board", "error", err)
		os.Exit(1)
	}
	healthServer, err := do.Invoke[*liveness.Server](injector)
	if err != nil {
		slog.Error("failed to resolve liveness server", "error", err)
		os.Exit(1)
	}

	if err := healthServer.Start(); err != nil {
		slog.Error("liveness server start failed", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := healthServer.Stop(ctx); err != nil {
			slog.Error("liveness server stop failed", "error", err)
		}
	}()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancelConnect()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancelBootstrap()
	if err := manager.Bootstrap(bootstrapCtx); err != nil {
		slog.Error("presence bootstrap failed", "error", err, "guild_id", cfg.DiscordGuildID)
		os.Exit(1)
	}

	dc.RegisterMessageHandler(manager.HandleMessage)
	dc.RegisterVoiceStateUpdateHandler(manager.HandleVoiceStateUpdate)
	dc.RegisterComponentHandler(board.HandleComponent)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "status_channel_id", cfg.DiscordStatusChannelID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := board.Start(ctx); err != nil {
		slog.Error("failed to post status message; retrying on next refresh", "error", err)
	}
	go board.Run(ctx)

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}
}
