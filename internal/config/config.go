package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/baechuer/order-lifecycle-service/internal/contracts/event"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Port           int

	// Postgres (pgxpool DSN)
	DBDSN string

	// Redis
	RedisAddr string
	RedisPass string
	RedisDB   int

	// Kafka
	KafkaBrokers []string
	KafkaGroupID string
	Topics       event.Topics

	// User directory
	UserServiceURL     string
	UserServiceTimeout time.Duration
	UserCacheTTL       time.Duration
	ProcessedEventTTL  time.Duration

	// Outbox relay
	OutboxBatchSize    int
	OutboxPollInterval time.Duration
	OutboxErrorBackoff time.Duration
	OutboxMaxAttempts  int
	OutboxErrMsgMaxLen int

	// Lifecycle processor
	OrderConfirmDelay      time.Duration
	OrderShipDelay         time.Duration
	OrderProcessorInterval time.Duration
	OrderProcessorBatch    int

	// Rate limit
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.ServiceName = getEnv("SERVICE_NAME", "order-service")
	cfg.ServiceVersion = getEnv("SERVICE_VERSION", "dev")
	cfg.Environment = getEnv("ENVIRONMENT", "dev")
	cfg.Port = getInt("PORT", 8080)

	// --- Postgres: prefer DATABASE_URL if present, else build from POSTGRES_*
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL != "" {
		cfg.DBDSN = dbURL
	} else {
		addr := getEnv("POSTGRES_ADDR", "")
		user := getEnv("POSTGRES_USER", "")
		pass := getEnv("POSTGRES_PASSWORD", "")
		db := getEnv("POSTGRES_DB", "")
		sslmode := getEnv("POSTGRES_SSLMODE", "disable")
		cfg.DBDSN = buildPostgresURL(addr, user, pass, db, sslmode)
	}

	// --- Redis
	cfg.RedisAddr = getEnv("REDIS_ADDR", "127.0.0.1:6379")
	cfg.RedisPass = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getInt("REDIS_DB", 0)

	// --- Kafka
	cfg.KafkaBrokers = splitCSV(getEnv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"))
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", "order-service")
	cfg.Topics = event.Topics{
		OrderCreated:   getEnv("KAFKA_TOPIC_ORDER_CREATED", event.TypeOrderCreated),
		OrderConfirmed: getEnv("KAFKA_TOPIC_ORDER_CONFIRMED", event.TypeOrderConfirmed),
		OrderShipped:   getEnv("KAFKA_TOPIC_ORDER_SHIPPED", event.TypeOrderShipped),
		OrderCancelled: getEnv("KAFKA_TOPIC_ORDER_CANCELLED", event.TypeOrderCancelled),
		UserCreated:    getEnv("KAFKA_TOPIC_USER_CREATED", event.TypeUserCreated),
		UserUpdated:    getEnv("KAFKA_TOPIC_USER_UPDATED", event.TypeUserUpdated),
		UserDeleted:    getEnv("KAFKA_TOPIC_USER_DELETED", event.TypeUserDeleted),
	}

	// --- User directory + caching
	cfg.UserServiceURL = getEnv("USER_SERVICE_URL", "http://localhost:8001")
	cfg.UserServiceTimeout = getSeconds("USER_SERVICE_TIMEOUT_SECONDS", 5)
	cfg.UserCacheTTL = getSeconds("USER_CACHE_TTL", 86400)
	cfg.ProcessedEventTTL = getSeconds("PROCESSED_EVENT_TTL", 604800)

	// --- Outbox relay
	cfg.OutboxBatchSize = getInt("OUTBOX_BATCH_SIZE", 100)
	cfg.OutboxPollInterval = getSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 1)
	cfg.OutboxErrorBackoff = getSeconds("OUTBOX_ERROR_BACKOFF_SECONDS", 5)
	cfg.OutboxMaxAttempts = getInt("OUTBOX_MAX_RETRY_ATTEMPTS", 5)
	cfg.OutboxErrMsgMaxLen = getInt("OUTBOX_ERROR_MESSAGE_MAX_LENGTH", 500)

	// --- Lifecycle processor
	cfg.OrderConfirmDelay = getSeconds("ORDER_CONFIRM_DELAY", 30)
	cfg.OrderShipDelay = getSeconds("ORDER_SHIP_DELAY", 120)
	cfg.OrderProcessorInterval = getSeconds("ORDER_PROCESSOR_INTERVAL", 10)
	cfg.OrderProcessorBatch = getInt("ORDER_PROCESSOR_BATCH_SIZE", 50)

	// --- Rate limit
	cfg.RLEnabled = getBool("RL_ENABLED", true)
	cfg.RLLimit = getInt("RL_REQUESTS_LIMIT", 100)
	cfg.RLWindow = getSeconds("RL_WINDOW_SECONDS", 60)

	// --- Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// --- Validation (fail fast)
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("missing database config: provide DATABASE_URL or POSTGRES_ADDR/POSTGRES_USER/POSTGRES_PASSWORD/POSTGRES_DB")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("missing KAFKA_BOOTSTRAP_SERVERS")
	}
	if cfg.OutboxBatchSize <= 0 {
		return nil, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	if cfg.OutboxMaxAttempts <= 0 {
		return nil, fmt.Errorf("OUTBOX_MAX_RETRY_ATTEMPTS must be positive")
	}
	if cfg.OrderConfirmDelay < 0 || cfg.OrderShipDelay < 0 {
		return nil, fmt.Errorf("order lifecycle delays must not be negative")
	}

	return cfg, nil
}

// buildPostgresURL builds a safe postgres URL DSN (handles special characters).
func buildPostgresURL(addr, user, pass, db, sslmode string) string {
	// If any critical fields missing, return empty and let validation handle it.
	if strings.TrimSpace(addr) == "" || strings.TrimSpace(user) == "" || strings.TrimSpace(db) == "" {
		return ""
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   strings.TrimSpace(addr),
		Path:   "/" + strings.TrimPrefix(strings.TrimSpace(db), "/"),
	}
	if pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}

	q := url.Values{}
	if strings.TrimSpace(sslmode) != "" {
		q.Set("sslmode", strings.TrimSpace(sslmode))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		// prefer failing fast over silent misconfig
		panic(fmt.Errorf("invalid boolean env %s=%q", k, v))
	}
}

// getSeconds reads an integer number of seconds. All interval/TTL settings
// are second-denominated.
func getSeconds(k string, defSeconds int) time.Duration {
	return time.Duration(getInt(k, defSeconds)) * time.Second
}
