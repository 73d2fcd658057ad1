// Package consumer subscribes to the user-lifecycle topics, keeps the Redis
// user cache in sync and cancels a deleted user's outstanding orders.
// Offsets are committed manually: only after a message is handled (or
// deliberately dropped) does its offset move.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/baechuer/order-lifecycle-service/internal/contracts/event"
	"github.com/baechuer/order-lifecycle-service/internal/domain"
	"github.com/baechuer/order-lifecycle-service/internal/metrics"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
	"github.com/baechuer/order-lifecycle-service/internal/tracing"
)

const cancelReasonUserDeleted = "user_deleted"

// Store is the slice of the Postgres repository the consumer needs.
type Store interface {
	CancellableOrders(ctx context.Context, userID string) ([]domain.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// Cache is the Redis surface: user records plus the idempotency fence.
type Cache interface {
	SetUser(ctx context.Context, u *domain.User) error
	DeleteUser(ctx context.Context, userID string) error
	SeenEvent(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string) error
}

// Publisher emits order.cancelled directly to the bus. The cancellation
// path publishes before touching the DB.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, key string, data any) error
}

// fetcher is the kafka.Reader surface, split out so tests can fake it.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader fetcher
	store  Store
	cache  Cache
	pub    Publisher
}

func New(brokers []string, groupID string, topics event.Topics, store Store, cache Cache, pub Publisher) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics.UserTopics(),
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{reader: reader, store: store, cache: cache, pub: pub}
}

// Run fetches and handles messages until ctx is cancelled. A message is
// committed when handling returns nil; handler errors leave the offset
// where it was so the message is redelivered.
func (c *Consumer) Run(ctx context.Context) {
	log := logger.Logger.With().Str("component", "user_consumer").Logger()

	metrics.TaskUp("user_consumer")
	defer metrics.TaskDown("user_consumer")
	defer func() { _ = c.reader.Close() }()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				log.Info().Msg("stopped")
				return
			}
			metrics.RecordTaskError("user_consumer")
			log.Error().Err(err).Msg("fetch failed")
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			log.Error().Err(err).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("handler failed; offset not committed")
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Str("topic", msg.Topic).Msg("commit failed")
		}
	}
}

// handle processes one message. It returns nil both on success and for
// messages dropped on purpose (malformed payload, duplicate, unknown event
// type); only retryable failures return an error.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	sc := tracing.ParseOrNew(headerValue(msg, tracing.Header))
	ctx = tracing.With(ctx, sc)

	log := logger.Logger.With().
		Str("component", "user_consumer").
		Str("topic", msg.Topic).
		Str("trace_id", sc.TraceID).
		Str("span_id", sc.SpanID).
		Logger()
	ctx = log.WithContext(ctx)

	var env event.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil || env.EventID == "" || env.EventType == "" {
		metrics.RecordConsume(msg.Topic, "unknown", "malformed")
		log.Warn().Err(err).Int64("offset", msg.Offset).Msg("malformed envelope dropped")
		return nil
	}

	seen, err := c.cache.SeenEvent(ctx, env.EventID)
	if err != nil {
		metrics.RecordConsume(msg.Topic, env.EventType, "error")
		return err
	}
	if seen {
		metrics.RecordDuplicate(msg.Topic, env.EventType)
		log.Debug().Str("event_id", env.EventID).Msg("duplicate event skipped")
		return nil
	}

	switch env.EventType {
	case event.TypeUserCreated, event.TypeUserUpdated:
		err = c.upsertUser(ctx, env.Data)
	case event.TypeUserDeleted:
		err = c.handleUserDeleted(ctx, env.Data)
	default:
		metrics.RecordConsume(msg.Topic, env.EventType, "skipped")
		log.Warn().Str("event_type", env.EventType).Msg("unknown event type skipped")
		return nil
	}
	if err != nil {
		metrics.RecordConsume(msg.Topic, env.EventType, "error")
		return err
	}

	if err := c.cache.MarkEventProcessed(ctx, env.EventID); err != nil {
		// the event is fully handled; losing the marker only risks a
		// redundant redo after redelivery
		log.Warn().Err(err).Str("event_id", env.EventID).Msg("processed marker write failed")
	}
	metrics.RecordConsume(msg.Topic, env.EventType, "success")
	return nil
}

func (c *Consumer) upsertUser(ctx context.Context, data json.RawMessage) error {
	var d event.UserEventData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	if d.UserID == "" {
		logger.WithCtx(ctx).Warn().Msg("user event without user_id dropped")
		return nil
	}
	return c.cache.SetUser(ctx, &domain.User{
		UserID: d.UserID,
		Email:  d.Email,
		Name:   d.Name,
		Status: d.Status,
	})
}

// handleUserDeleted cancels every pending/confirmed order of the user. For
// each order the order.cancelled event is published first; only if the
// publish succeeds is the order flipped in the DB, each in its own
// transaction. A failed publish skips that order so redelivery retries it.
func (c *Consumer) handleUserDeleted(ctx context.Context, data json.RawMessage) error {
	var d event.UserEventData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	if d.UserID == "" {
		logger.WithCtx(ctx).Warn().Msg("user.deleted without user_id dropped")
		return nil
	}
	log := logger.WithCtx(ctx)

	orders, err := c.store.CancellableOrders(ctx, d.UserID)
	if err != nil {
		return err
	}

	for _, o := range orders {
		err := c.pub.PublishEvent(ctx, event.TypeOrderCancelled, o.UserID, event.OrderCancelledData{
			OrderID:     o.ID.String(),
			UserID:      o.UserID,
			Status:      string(domain.StatusCancelled),
			Reason:      cancelReasonUserDeleted,
			CancelledAt: time.Now().UTC(),
		})
		if err != nil {
			log.Error().Err(err).Str("order_id", o.ID.String()).Msg("cancel publish failed; order skipped")
			continue
		}
		if _, err := c.store.CancelOrder(ctx, o.ID); err != nil {
			log.Error().Err(err).Str("order_id", o.ID.String()).Msg("cancel update failed")
			continue
		}
		log.Info().Str("order_id", o.ID.String()).Str("user_id", d.UserID).Msg("order cancelled")
	}

	if err := c.cache.DeleteUser(ctx, d.UserID); err != nil {
		log.Warn().Err(err).Str("user_id", d.UserID).Msg("user cache delete failed")
	}
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
