package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/baechuer/order-lifecycle-service/internal/contracts/event"
	"github.com/baechuer/order-lifecycle-service/internal/domain"
)

// Lifecycle scans run in two steps: an unlocked candidate-id scan, then a
// per-order transaction that re-checks status under FOR UPDATE SKIP LOCKED.
// A concurrent processor (or the cancellation path) simply makes the claim
// miss; the order is skipped, not double-advanced.

// DueForConfirmation lists pending orders created at or before cutoff.
func (r *Repository) DueForConfirmation(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	return r.dueIDs(ctx, `
		SELECT id FROM orders
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
}

// DueForShipping lists confirmed orders confirmed at or before cutoff.
func (r *Repository) DueForShipping(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	return r.dueIDs(ctx, `
		SELECT id FROM orders
		WHERE status = 'confirmed' AND confirmed_at <= $1
		ORDER BY confirmed_at ASC
		LIMIT $2
	`, cutoff, limit)
}

func (r *Repository) dueIDs(ctx context.Context, sql string, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, sql, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ConfirmOrder claims a due pending order and moves it to confirmed,
// staging order.confirmed in the same transaction. Returns false when the
// claim misses (row locked, already advanced, or no longer due).
func (r *Repository) ConfirmOrder(ctx context.Context, orderID uuid.UUID, cutoff time.Time, paymentID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID, currency string
	var totalAmount float64
	err = tx.QueryRow(ctx, `
		SELECT user_id, total_amount, currency FROM orders
		WHERE id = $1 AND status = 'pending' AND created_at <= $2
		FOR UPDATE SKIP LOCKED
	`, orderID, cutoff).Scan(&userID, &totalAmount, &currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = 'confirmed', payment_id = $2, confirmed_at = $3, updated_at = $3
		WHERE id = $1
	`, orderID, paymentID, now)
	if err != nil {
		return false, err
	}

	err = r.insertOutboxTx(ctx, tx, event.TypeOrderConfirmed, userID, event.OrderConfirmedData{
		OrderID:     orderID.String(),
		UserID:      userID,
		Status:      string(domain.StatusConfirmed),
		PaymentID:   paymentID,
		TotalAmount: totalAmount,
		Currency:    currency,
		ConfirmedAt: now,
	})
	if err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// ShipOrder claims a due confirmed order and moves it to shipped, staging
// order.shipped in the same transaction.
func (r *Repository) ShipOrder(ctx context.Context, orderID uuid.UUID, cutoff time.Time, trackingNumber, carrier string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	err = tx.QueryRow(ctx, `
		SELECT user_id FROM orders
		WHERE id = $1 AND status = 'confirmed' AND confirmed_at <= $2
		FOR UPDATE SKIP LOCKED
	`, orderID, cutoff).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = 'shipped', tracking_number = $2, carrier = $3, shipped_at = $4, updated_at = $4
		WHERE id = $1
	`, orderID, trackingNumber, carrier, now)
	if err != nil {
		return false, err
	}

	err = r.insertOutboxTx(ctx, tx, event.TypeOrderShipped, userID, event.OrderShippedData{
		OrderID:           orderID.String(),
		UserID:            userID,
		Status:            string(domain.StatusShipped),
		TrackingNumber:    trackingNumber,
		Carrier:           carrier,
		ShippedAt:         now,
		EstimatedDelivery: now.Add(72 * time.Hour),
	})
	if err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// TraceForOrder recovers the trace ids captured on the order.created outbox
// row, so lifecycle transitions continue the trace that created the order.
// ok=false when the row predates trace capture or was never written.
func (r *Repository) TraceForOrder(ctx context.Context, orderID uuid.UUID) (traceID, spanID string, ok bool, err error) {
	var t, s *string
	err = r.pool.QueryRow(ctx, `
		SELECT trace_id, span_id
		FROM outbox_events
		WHERE event_type = $1 AND payload->'data'->>'order_id' = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, event.TypeOrderCreated, orderID.String()).Scan(&t, &s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	if t == nil || *t == "" {
		return "", "", false, nil
	}
	if s != nil {
		spanID = *s
	}
	return *t, spanID, true, nil
}
