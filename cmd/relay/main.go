package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baechuer/order-lifecycle-service/internal/config"
	"github.com/baechuer/order-lifecycle-service/internal/infrastructure/kafka"
	"github.com/baechuer/order-lifecycle-service/internal/infrastructure/postgres"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", cfg.ServiceName+"-relay").
		Str("env", cfg.Environment).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()
		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	// The API binary owns migrations; the relay just needs the tables to
	// exist. Running them here too keeps single-binary dev setups working.
	if err := postgres.Migrate(rootCtx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	repo := postgres.New(dbPool, cfg.Topics)
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.Topics)
	defer producer.Close()

	log.Info().
		Int("batch_size", cfg.OutboxBatchSize).
		Dur("poll_interval", cfg.OutboxPollInterval).
		Int("max_attempts", cfg.OutboxMaxAttempts).
		Msg("outbox relay starting")

	repo.RunOutboxRelay(rootCtx, postgres.RelayConfig{
		BatchSize:    cfg.OutboxBatchSize,
		PollInterval: cfg.OutboxPollInterval,
		ErrorBackoff: cfg.OutboxErrorBackoff,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		ErrMsgMaxLen: cfg.OutboxErrMsgMaxLen,
	}, producer)

	log.Info().Msg("shutdown complete")
}
