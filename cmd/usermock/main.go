// usermock emits synthetic user.created / user.updated / user.deleted
// events so the consumer path can be exercised end to end without a real
// user service.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baechuer/order-lifecycle-service/internal/config"
	"github.com/baechuer/order-lifecycle-service/internal/contracts/event"
	"github.com/baechuer/order-lifecycle-service/internal/infrastructure/kafka"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
	"github.com/baechuer/order-lifecycle-service/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logger.Init()
	log := logger.Logger.With().Str("service", "usermock").Logger()

	interval := envSeconds("MOCK_EVENT_INTERVAL_SECONDS", 5)
	maxPool := envInt("MOCK_MAX_ACTIVE_USERS", 20)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.Topics)
	defer producer.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pool []string
	log.Info().Dur("interval", interval).Int("max_active_users", maxPool).Msg("mock user producer starting")

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown complete")
			return
		case <-ticker.C:
			ctx := tracing.With(rootCtx, tracing.New())
			pool = emitOne(ctx, producer, pool, maxPool, log)
		}
	}
}

// emitOne publishes a single random user event. The pool grows with
// user.created until maxPool, after which updates and deletes dominate.
func emitOne(ctx context.Context, pub *kafka.Producer, pool []string, maxPool int, log zerolog.Logger) []string {
	var eventType, userID string

	switch {
	case len(pool) == 0:
		eventType = event.TypeUserCreated
	case len(pool) >= maxPool:
		if rand.Intn(2) == 0 {
			eventType = event.TypeUserUpdated
		} else {
			eventType = event.TypeUserDeleted
		}
	default:
		switch rand.Intn(3) {
		case 0:
			eventType = event.TypeUserCreated
		case 1:
			eventType = event.TypeUserUpdated
		default:
			eventType = event.TypeUserDeleted
		}
	}

	data := event.UserEventData{}
	switch eventType {
	case event.TypeUserCreated:
		userID = newUserID()
		data = event.UserEventData{
			UserID: userID,
			Email:  userID + "@example.com",
			Name:   "Mock " + userID,
			Status: "active",
		}
		pool = append(pool, userID)
	case event.TypeUserUpdated:
		userID = pool[rand.Intn(len(pool))]
		data = event.UserEventData{
			UserID: userID,
			Email:  userID + "@example.com",
			Name:   "Mock " + userID + " (updated)",
			Status: "active",
		}
	case event.TypeUserDeleted:
		i := rand.Intn(len(pool))
		userID = pool[i]
		pool = append(pool[:i], pool[i+1:]...)
		now := time.Now().UTC()
		data = event.UserEventData{UserID: userID, DeletedAt: &now, Reason: "account_closed"}
	}

	if err := pub.PublishEvent(ctx, eventType, userID, data); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Str("user_id", userID).Msg("publish failed")
		return pool
	}
	log.Info().Str("event_type", eventType).Str("user_id", userID).Int("pool", len(pool)).Msg("event published")
	return pool
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envSeconds(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Second
}

func newUserID() string {
	return "user_" + uuid.NewString()[:8]
}
