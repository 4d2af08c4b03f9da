package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/agentd/internal/agent"
	"github.com/gosuda/agentd/internal/config"
	"github.com/gosuda/agentd/internal/domain"
	"github.com/gosuda/agentd/internal/sandbox"
	"github.com/gosuda/agentd/internal/server"
	"github.com/gosuda/agentd/internal/session"
	"github.com/gosuda/agentd/internal/store/postgres"
	redisstore "github.com/gosuda/agentd/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("AGENTD_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("AGENTD_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to Redis when configured. Without it sessions still run; only
	// the cross-process watch endpoint is disabled.
	var pubsub *redisstore.PubSub
	if cfg.Redis.Enabled() {
		pubsub, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer pubsub.Close()
	} else {
		log.Info().Msg("redis not configured, event mirror disabled")
	}

	// Connect to PostgreSQL when configured. Without it event history is
	// kept in memory only.
	var eventLog domain.EventLogRepository
	if cfg.Database.Enabled() {
		if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
			return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}
		store, storeErr := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if storeErr != nil {
			return storeErr
		}
		defer store.Close()
		eventLog = store.EventLog()
	} else {
		log.Info().Msg("database not configured, event log disabled")
	}

	// Create Docker runtime for session sandboxes.
	runtime, err := sandbox.NewRuntime(
		cfg.Docker.Host,
		cfg.Docker.Image,
		cfg.Docker.CPULimit,
		cfg.Docker.MemLimit,
	)
	if err != nil {
		return fmt.Errorf("docker runtime: %w", err)
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close docker runtime")
		}
	}()

	newSandbox := func(ctx context.Context, sid uuid.UUID) (agent.SandboxResource, error) {
		return runtime.Create(ctx, sid)
	}

	// Create agent registry and register strategies.
	registry := agent.NewRegistry()
	registry.Register("MonologueAgent", agent.NewMonologue)

	manager := session.NewManager(cfg.Agent, registry, newSandbox, publisherOrNil(pubsub), eventLog)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, manager, pubsub, eventLog)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	manager.CloseAll(shutdownCtx)

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

// publisherOrNil converts a possibly-nil *PubSub into the manager's Publisher
// dependency without producing a non-nil interface holding a nil pointer.
func publisherOrNil(pubsub *redisstore.PubSub) session.Publisher {
	if pubsub == nil {
		return nil
	}
	return pubsub
}
