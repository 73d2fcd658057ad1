// Package metrics holds the Prometheus registry surface for both the API
// process and the relay worker. Everything is registered through promauto at
// init and exposed at /metrics via Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Kafka produce/consume.
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_events_published_total",
		Help: "Events published to Kafka, by topic, event type and status.",
	}, []string{"topic", "event_type", "status"})

	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_events_consumed_total",
		Help: "Events consumed from Kafka, by topic, event type and status.",
	}, []string{"topic", "event_type", "status"})

	eventsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_events_duplicate_total",
		Help: "Consumed events skipped by the idempotency check.",
	}, []string{"topic", "event_type"})

	publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_publish_duration_seconds",
		Help:    "Kafka publish latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"topic", "event_type"})

	// Outbox relay.
	outboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_events_pending",
		Help: "Unpublished outbox rows observed at the last relay cycle.",
	})

	outboxProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_processed_total",
		Help: "Outbox rows processed by the relay, by outcome.",
	}, []string{"status"})

	outboxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_retry_attempts_total",
		Help: "Outbox publish retries, by event type.",
	}, []string{"event_type"})

	// User validation path.
	userValidation = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "user_validation_total",
		Help: "Order-creation user validations, by result.",
	}, []string{"result"}) // valid | invalid | error

	userValidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "user_validation_duration_seconds",
		Help:    "End-to-end user validation latency (cache + directory).",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	userDirectoryCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "user_directory_api_calls_total",
		Help: "HTTP calls to the user directory, by status.",
	}, []string{"status"}) // found | not_found | error

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "User cache hits.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "User cache misses.",
	})

	// Background loops.
	taskRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "background_tasks_running",
		Help: "1 while the named background loop is running.",
	}, []string{"task"})

	taskErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "background_task_errors_total",
		Help: "Background loop cycle errors, by task.",
	}, []string{"task"})

	// HTTP.
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests, by method, route and status code.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route"})

	// DB pool, scraped from pgxpool.Stat.
	dbPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_connections_in_use",
		Help: "Acquired pgx pool connections.",
	})
	dbPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_connections_idle",
		Help: "Idle pgx pool connections.",
	})
)

func RecordPublish(topic, eventType, status string, elapsed time.Duration) {
	eventsPublished.WithLabelValues(topic, eventType, status).Inc()
	if status == "success" {
		publishDuration.WithLabelValues(topic, eventType).Observe(elapsed.Seconds())
	}
}

func RecordConsume(topic, eventType, status string) {
	eventsConsumed.WithLabelValues(topic, eventType, status).Inc()
}

func RecordDuplicate(topic, eventType string) {
	eventsDuplicate.WithLabelValues(topic, eventType).Inc()
}

func SetOutboxPending(n int) { outboxPending.Set(float64(n)) }

func RecordOutboxProcessed(status string) { outboxProcessed.WithLabelValues(status).Inc() }

func RecordOutboxRetry(eventType string) { outboxRetries.WithLabelValues(eventType).Inc() }

func RecordUserValidation(result string, elapsed time.Duration) {
	userValidation.WithLabelValues(result).Inc()
	userValidationDuration.Observe(elapsed.Seconds())
}

func RecordDirectoryCall(status string) { userDirectoryCalls.WithLabelValues(status).Inc() }

func RecordCacheHit()  { cacheHits.Inc() }
func RecordCacheMiss() { cacheMisses.Inc() }

func TaskUp(task string)   { taskRunning.WithLabelValues(task).Set(1) }
func TaskDown(task string) { taskRunning.WithLabelValues(task).Set(0) }

func RecordTaskError(task string) { taskErrors.WithLabelValues(task).Inc() }

func RecordHTTPRequest(method, route, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func SetDBPool(inUse, idle int32) {
	dbPoolInUse.Set(float64(inUse))
	dbPoolIdle.Set(float64(idle))
}

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler { return promhttp.Handler() }
