package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baechuer/order-lifecycle-service/internal/clients/userdir"
	"github.com/baechuer/order-lifecycle-service/internal/config"
	"github.com/baechuer/order-lifecycle-service/internal/consumer"
	"github.com/baechuer/order-lifecycle-service/internal/infrastructure/kafka"
	"github.com/baechuer/order-lifecycle-service/internal/infrastructure/postgres"
	"github.com/baechuer/order-lifecycle-service/internal/infrastructure/redis"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
	"github.com/baechuer/order-lifecycle-service/internal/processor"
	"github.com/baechuer/order-lifecycle-service/internal/service"
	"github.com/baechuer/order-lifecycle-service/internal/transport/rest"
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
		Str("service", cfg.ServiceName).
		Str("env", cfg.Environment).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
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

	if err := postgres.Migrate(rootCtx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	repo := postgres.New(dbPool, cfg.Topics)
	go repo.ReportPoolStats(rootCtx, 15*time.Second)

	// ---- Redis ----
	cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.UserCacheTTL, cfg.ProcessedEventTTL)
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()
		if err := cache.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
	}

	// ---- Kafka producer (direct-publish path only; staged events go
	// through the relay binary) ----
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.Topics)
	defer producer.Close()

	// ---- Application services ----
	directory := userdir.New(cfg.UserServiceURL, cfg.UserServiceTimeout)
	users := service.NewUsers(cache, directory)
	orders := service.NewOrders(repo, users)

	// ---- User-event consumer ----
	userConsumer := consumer.New(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.Topics, repo, cache, producer)
	go userConsumer.Run(rootCtx)

	// ---- Lifecycle processor ----
	proc := processor.New(repo, processor.Config{
		ConfirmDelay: cfg.OrderConfirmDelay,
		ShipDelay:    cfg.OrderShipDelay,
		Interval:     cfg.OrderProcessorInterval,
		BatchSize:    cfg.OrderProcessorBatch,
	})
	go proc.Run(rootCtx)

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Handler: rest.NewHandler(orders),
		Health: rest.NewHealth(map[string]rest.Pinger{
			"database": dbPool,
			"redis":    cache,
		}),
		RateLimitEnabled: cfg.RLEnabled,
		RateLimit:        cfg.RLLimit,
		RateLimitWindow:  cfg.RLWindow,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
