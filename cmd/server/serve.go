package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parsascontentcorner/discordlitesync/internal/config"
	"github.com/parsascontentcorner/discordlitesync/internal/gateway"
	grpcserver "github.com/parsascontentcorner/discordlitesync/internal/grpc"
	httpserver "github.com/parsascontentcorner/discordlitesync/internal/http"
	"github.com/parsascontentcorner/discordlitesync/internal/pipeline"
)

const (
	syncStateCleanupInterval = 30 * time.Minute
	healthCheckInterval      = 15 * time.Second
	gatewayRestartInterval   = 5 * time.Second
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers and, when enabled, the Gateway sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts.cfg, opts.log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting discordlitesync",
		zap.String("environment", cfg.Server.Env),
		zap.String("http_port", cfg.Server.HTTPPort),
		zap.String("grpc_port", cfg.Server.GRPCPort),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("gateway_enabled", cfg.Discord.GatewayEnabled),
		zap.Bool("remote_enabled", cfg.Discord.RemoteEnabled),
	)

	c, err := openCore(cfg, log)
	if err != nil {
		return err
	}
	defer c.close(log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.db.StartSyncStateCleanupJob(ctx, syncStateCleanupInterval)

	// Without a remote source READY only records the bot identity
	var lister pipeline.GuildLister
	if c.source != nil {
		lister = c.source
	}
	pipe := pipeline.New(c.resolvers, lister, c.db, pipeline.Config{
		BootstrapFetch: cfg.Sync.BootstrapFetch,
		BootstrapTTL:   cfg.Sync.BootstrapTTL,
	}, log.Named("pipeline"))

	entityService := grpcserver.NewEntityServer(c.resolvers, log)
	grpcServer, err := grpcserver.NewServer(entityService, c.db, cfg.Server.GRPCPort, log)
	if err != nil {
		return err
	}
	grpcServer.StartHealthJob(ctx, healthCheckInterval)

	httpHandlers := httpserver.NewHandlers(c.db, c.resolvers, pipe, log)
	httpServer, err := httpserver.NewServer(httpHandlers, cfg.Server.HTTPPort, log)
	if err != nil {
		grpcServer.Stop()
		return err
	}

	grpcErrChan := make(chan error, 1)
	httpErrChan := make(chan error, 1)

	go func() {
		if err := grpcServer.Serve(); err != nil {
			grpcErrChan <- err
		}
	}()

	go func() {
		if err := httpServer.Serve(); err != nil {
			httpErrChan <- err
		}
	}()

	gatewayDone := make(chan struct{})
	if cfg.Discord.GatewayEnabled {
		go func() {
			defer close(gatewayDone)
			runGateway(ctx, &cfg.Discord, pipe, log.Named("gateway"))
		}()
	} else {
		close(gatewayDone)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-grpcErrChan:
		log.Error("gRPC server error", zap.Error(runErr))
	case runErr = <-httpErrChan:
		log.Error("HTTP server error", zap.Error(runErr))
	case sig := <-sigChan:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	log.Info("shutting down servers...")
	cancel()
	<-gatewayDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
	}
	grpcServer.GracefulStop()

	stats := pipe.Stats()
	log.Info("servers shut down successfully",
		zap.Uint64("events", stats.Events),
		zap.Uint64("writes", stats.Writes),
		zap.Uint64("failures", stats.Failures),
	)
	return runErr
}

// runGateway keeps a Gateway session open until ctx ends, starting a new one whenever Discord
// ends the current session. Restarts are spaced by gatewayRestartInterval
func runGateway(ctx context.Context, cfg *config.DiscordConfig, applier gateway.Applier, log *zap.Logger) {
	restarts := rate.NewLimiter(rate.Every(gatewayRestartInterval), 1)

	for {
		if err := restarts.Wait(ctx); err != nil {
			return
		}

		err := gateway.New(cfg, applier, log).Run(ctx)
		if ctx.Err() != nil {
			return
		}

		switch {
		case errors.Is(err, gateway.ErrReconnect):
			log.Info("Gateway requested reconnect, starting a new session")
		case errors.Is(err, gateway.ErrInvalidSession):
			log.Warn("Gateway session invalidated, identifying again")
		default:
			log.Error("Gateway session ended", zap.Error(err))
		}
	}
}
