package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/baechuer/order-lifecycle-service/internal/contracts/event"
	"github.com/baechuer/order-lifecycle-service/internal/metrics"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
	"github.com/baechuer/order-lifecycle-service/internal/tracing"
)

const (
	publishAttempts   = 3
	publishBackoffMin = 1 * time.Second
	publishBackoffMax = 10 * time.Second
)

// Producer wraps a single kafka.Writer shared across topics. Messages carry
// their topic; the hash balancer keys partition assignment off the message
// key so per-key ordering holds.
type Producer struct {
	writer *kafka.Writer
	topics event.Topics
}

func NewProducer(brokers []string, topics event.Topics) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: w, topics: topics}
}

// Publish writes one message and waits for the full-ISR ack. No retries
// here: the outbox relay owns retry bookkeeping for staged rows.
// Satisfies postgres.EventPublisher.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, traceparent string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	if traceparent != "" {
		msg.Headers = []kafka.Header{{Key: tracing.Header, Value: []byte(traceparent)}}
	}
	return p.writer.WriteMessages(ctx, msg)
}

// PublishEvent wraps data in a fresh envelope and publishes it directly,
// bypassing the outbox. Used where the write deliberately precedes any DB
// state change (user-deleted cancellation) and by the mock user producer.
// Retries a few times with exponential backoff before giving up.
func (p *Producer) PublishEvent(ctx context.Context, eventType, key string, data any) error {
	env, err := event.New(eventType, data)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}

	topic := p.topics.For(eventType)
	var traceparent string
	if sc, ok := tracing.From(ctx); ok && sc.Valid() {
		traceparent = sc.Traceparent()
	}

	log := logger.WithCtx(ctx)
	backoff := publishBackoffMin
	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		start := time.Now()
		err := p.Publish(ctx, topic, []byte(key), value, traceparent)
		if err == nil {
			metrics.RecordPublish(topic, eventType, "success", time.Since(start))
			return nil
		}
		metrics.RecordPublish(topic, eventType, "error", time.Since(start))
		lastErr = err

		if attempt < publishAttempts {
			log.Warn().Err(err).
				Str("topic", topic).
				Str("event_type", eventType).
				Int("attempt", attempt).
				Msg("publish failed; retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > publishBackoffMax {
				backoff = publishBackoffMax
			}
		}
	}
	return lastErr
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
