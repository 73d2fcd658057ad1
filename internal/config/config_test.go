package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/orders?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "order-service", cfg.KafkaGroupID)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, 5*time.Second, cfg.OutboxErrorBackoff)
	assert.Equal(t, 5, cfg.OutboxMaxAttempts)
	assert.Equal(t, 500, cfg.OutboxErrMsgMaxLen)
	assert.Equal(t, 30*time.Second, cfg.OrderConfirmDelay)
	assert.Equal(t, 120*time.Second, cfg.OrderShipDelay)
	assert.Equal(t, 10*time.Second, cfg.OrderProcessorInterval)
	assert.Equal(t, 24*time.Hour, cfg.UserCacheTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.ProcessedEventTTL)
	assert.Equal(t, "order.created", cfg.Topics.OrderCreated)
	assert.Equal(t, "user.deleted", cfg.Topics.UserDeleted)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/orders")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC_ORDER_CREATED", "orders.v2.created")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("ORDER_CONFIRM_DELAY", "5")
	t.Setenv("ENVIRONMENT", "staging")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "orders.v2.created", cfg.Topics.OrderCreated)
	assert.Equal(t, 25, cfg.OutboxBatchSize)
	assert.Equal(t, 5*time.Second, cfg.OrderConfirmDelay)
	assert.Equal(t, "staging", cfg.Environment)
}

func TestLoadBuildsDSNFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_ADDR", "db:5432")
	t.Setenv("POSTGRES_USER", "orders")
	t.Setenv("POSTGRES_PASSWORD", "p@ss/word")
	t.Setenv("POSTGRES_DB", "orders")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.DBDSN, "postgres://")
	assert.Contains(t, cfg.DBDSN, "db:5432")
	assert.Contains(t, cfg.DBDSN, "sslmode=disable")
}

func TestLoadFailsWithoutDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_ADDR", "")
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("POSTGRES_DB", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")
}

func TestLoadRejectsNonPositiveBatch(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/orders")
	t.Setenv("OUTBOX_BATCH_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
}
