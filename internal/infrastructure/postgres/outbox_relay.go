package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/order-lifecycle-service/internal/metrics"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
)

// EventPublisher is the transport the relay hands claimed rows to. The
// traceparent header value is empty for rows without captured trace ids.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, traceparent string) error
}

type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	ErrorBackoff time.Duration
	MaxAttempts  int
	ErrMsgMaxLen int
}

type outboxRow struct {
	ID           uuid.UUID
	EventID      string
	EventType    string
	Topic        string
	PartitionKey *string
	Payload      []byte
	Attempts     int
	TraceID      *string
	SpanID       *string
}

type relayFailure struct {
	row    outboxRow
	errMsg string
}

// RunOutboxRelay polls the outbox and publishes unpublished rows until ctx
// is cancelled. Blocking; the relay binary runs this as its main loop.
func (r *Repository) RunOutboxRelay(ctx context.Context, cfg RelayConfig, pub EventPublisher) {
	log := logger.Logger.With().Str("component", "outbox_relay").Logger()

	metrics.TaskUp("outbox_relay")
	defer metrics.TaskDown("outbox_relay")

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	var lastErr string
	var lastAt time.Time

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return
		case <-ticker.C:
			published, err := r.processOutboxBatch(ctx, cfg, pub)
			if err != nil {
				metrics.RecordTaskError("outbox_relay")
				// suppress repeats of the same cycle error
				if err.Error() != lastErr || time.Since(lastAt) > 10*time.Second {
					log.Warn().Err(err).Msg("outbox cycle failed")
					lastErr = err.Error()
					lastAt = time.Now()
				}
				select {
				case <-ctx.Done():
				case <-time.After(cfg.ErrorBackoff):
				}
				continue
			}
			lastErr = ""
			if published > 0 {
				log.Debug().Int("published", published).Msg("outbox batch done")
			}
			if pending, err := r.PendingOutboxCount(ctx); err == nil {
				metrics.SetOutboxPending(pending)
			}
		}
	}
}

// processOutboxBatch claims up to BatchSize unpublished rows under FOR
// UPDATE SKIP LOCKED, publishes them in creation order and marks successes
// inside the claim transaction. Failures are bumped after commit in small
// standalone updates so a poison row never rolls back the batch's progress.
// A crash between publish and commit re-delivers the batch; consumers
// dedupe on event_id.
func (r *Repository) processOutboxBatch(ctx context.Context, cfg RelayConfig, pub EventPublisher) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, event_id, event_type, topic, partition_key, payload, attempts, trace_id, span_id
		FROM outbox_events
		WHERE NOT published AND attempts < $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, cfg.MaxAttempts, cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var batch []outboxRow
	for rows.Next() {
		var m outboxRow
		if err := rows.Scan(&m.ID, &m.EventID, &m.EventType, &m.Topic, &m.PartitionKey, &m.Payload, &m.Attempts, &m.TraceID, &m.SpanID); err != nil {
			rows.Close()
			return 0, err
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, tx.Commit(ctx)
	}

	published, failures, err := publishClaimed(ctx, cfg, pub, batch, func(ctx context.Context, id uuid.UUID) error {
		_, err := tx.Exec(ctx, `
			UPDATE outbox_events
			SET published = TRUE, published_at = NOW(), last_error = NULL, updated_at = NOW()
			WHERE id = $1
		`, id)
		return err
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	for _, f := range failures {
		r.failOutbox(ctx, f.row, f.errMsg, cfg.MaxAttempts)
	}
	return published, nil
}

// publishClaimed walks a claimed batch in creation order, publishing each row
// and marking successes through mark. A failed publish is collected and the
// walk continues; only a mark failure aborts, since the batch transaction is
// then unusable. Rows at the retry ceiling are skipped, keeping the ceiling
// enforced no matter how the batch was assembled.
func publishClaimed(ctx context.Context, cfg RelayConfig, pub EventPublisher, batch []outboxRow, mark func(context.Context, uuid.UUID) error) (int, []relayFailure, error) {
	log := logger.Logger.With().Str("component", "outbox_relay").Logger()

	published := 0
	var failures []relayFailure
	for _, m := range batch {
		if m.Attempts >= cfg.MaxAttempts {
			log.Debug().Str("outbox_id", m.ID.String()).Int("attempts", m.Attempts).Msg("parked row skipped")
			continue
		}

		var key []byte
		if m.PartitionKey != nil {
			key = []byte(*m.PartitionKey)
		}
		var traceparent string
		if m.TraceID != nil && m.SpanID != nil {
			traceparent = fmt.Sprintf("00-%s-%s-01", *m.TraceID, *m.SpanID)
		}

		start := time.Now()
		if err := pub.Publish(ctx, m.Topic, key, m.Payload, traceparent); err != nil {
			metrics.RecordPublish(m.Topic, m.EventType, "error", time.Since(start))
			metrics.RecordOutboxRetry(m.EventType)
			failures = append(failures, relayFailure{row: m, errMsg: truncate(err.Error(), cfg.ErrMsgMaxLen)})
			continue
		}
		metrics.RecordPublish(m.Topic, m.EventType, "success", time.Since(start))

		if err := mark(ctx, m.ID); err != nil {
			return 0, nil, err
		}
		published++
		metrics.RecordOutboxProcessed("published")

		log.Info().
			Str("outbox_id", m.ID.String()).
			Str("event_id", m.EventID).
			Str("event_type", m.EventType).
			Str("topic", m.Topic).
			Msg("published")
	}
	return published, failures, nil
}

// failOutbox bumps attempts and records the error outside the batch tx.
// Hitting MaxAttempts parks the row: the claim query stops selecting it and
// an operator has to intervene.
func (r *Repository) failOutbox(ctx context.Context, m outboxRow, errMsg string, maxAttempts int) {
	log := logger.Logger.With().Str("component", "outbox_relay").Logger()

	attempts := m.Attempts + 1
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, m.ID, attempts, errMsg)
	if err != nil {
		log.Error().Err(err).Str("outbox_id", m.ID.String()).Msg("failed to record outbox failure")
		return
	}
	metrics.RecordOutboxProcessed("failed")

	if attempts >= maxAttempts {
		log.Error().
			Str("outbox_id", m.ID.String()).
			Str("event_id", m.EventID).
			Str("event_type", m.EventType).
			Int("attempts", attempts).
			Str("last_error", errMsg).
			Msg("outbox row exhausted retry budget; manual intervention required")
		return
	}

	log.Warn().
		Str("outbox_id", m.ID.String()).
		Str("event_id", m.EventID).
		Str("event_type", m.EventType).
		Int("attempts", attempts).
		Msg("outbox publish failed; will retry next cycle")
}

// PendingOutboxCount counts unpublished rows, including parked ones.
func (r *Repository) PendingOutboxCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE NOT published`).Scan(&n)
	return n, err
}

func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
