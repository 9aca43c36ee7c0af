package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/pinboard/internal/auth"
	"github.com/gosuda/pinboard/internal/config"
	"github.com/gosuda/pinboard/internal/logging"
	"github.com/gosuda/pinboard/internal/relay"
	"github.com/gosuda/pinboard/internal/server"
	"github.com/gosuda/pinboard/internal/store/postgres"
	redisstore "github.com/gosuda/pinboard/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.Migrate(ctx)
	if err != nil {
		return err
	}

	// Connect to Redis when cross-instance fan-out is configured.
	var bridge relay.Bridge
	if cfg.Redis.Enabled() {
		pubsub, redisErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			return redisErr
		}
		defer pubsub.Close()
		bridge = relay.NewRedisBridge(ctx, pubsub, cfg.Relay.BridgeBuffer)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis bridge enabled")
	}

	rl := relay.New(relay.Config{InstanceID: cfg.Relay.InstanceID}, bridge)
	relayDone := make(chan error, 1)
	go func() {
		relayDone <- rl.Run(ctx)
	}()

	authSvc := auth.NewService(store.Users(), cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, store, authSvc, rl)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("instance", rl.InstanceID()).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal or relay failure.
	select {
	case <-ctx.Done():
	case err = <-relayDone:
		if err != nil {
			log.Error().Err(err).Msg("relay stopped")
		}
		cancel()
	}
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return err
}
