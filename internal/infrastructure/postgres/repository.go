package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baechuer/order-lifecycle-service/internal/contracts/event"
	"github.com/baechuer/order-lifecycle-service/internal/domain"
	"github.com/baechuer/order-lifecycle-service/internal/metrics"
	"github.com/baechuer/order-lifecycle-service/internal/tracing"
)

type Repository struct {
	pool   *pgxpool.Pool
	topics event.Topics
}

func New(pool *pgxpool.Pool, topics event.Topics) *Repository {
	return &Repository{pool: pool, topics: topics}
}

// CreateOrder inserts the order, its items and the order.created outbox row
// in one transaction. Either everything lands or nothing does; the relay
// takes it from there.
func (r *Repository) CreateOrder(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	o.ID = uuid.New()
	o.Status = domain.StatusPending
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount, currency, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, o.ID, o.UserID, string(o.Status), o.TotalAmount, o.Currency, o.ShippingAddress, now)
	if err != nil {
		return err
	}

	itemData := make([]event.OrderItemData, 0, len(o.Items))
	for i := range o.Items {
		it := &o.Items[i]
		it.ID = uuid.New()
		it.OrderID = o.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, it.ID, it.OrderID, it.ProductID, it.Quantity, it.UnitPrice)
		if err != nil {
			return err
		}
		itemData = append(itemData, event.OrderItemData{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice,
		})
	}

	err = r.insertOutboxTx(ctx, tx, event.TypeOrderCreated, o.UserID, event.OrderCreatedData{
		OrderID:         o.ID.String(),
		UserID:          o.UserID,
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress,
		Items:           itemData,
		CreatedAt:       now,
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListOrders returns a page of orders newest-first with items eagerly
// loaded, plus the total count.
func (r *Repository) ListOrders(ctx context.Context, skip, limit int) ([]domain.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, status, total_amount, currency, shipping_address,
		       payment_id, tracking_number, carrier,
		       created_at, updated_at, confirmed_at, shipped_at
		FROM orders
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2
	`, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// CancellableOrders returns the user's pending/confirmed orders, for the
// user-deleted cleanup path.
func (r *Repository) CancellableOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, status, total_amount, currency, shipping_address,
		       payment_id, tracking_number, carrier,
		       created_at, updated_at, confirmed_at, shipped_at
		FROM orders
		WHERE user_id = $1 AND status IN ('pending', 'confirmed')
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CancelOrder moves a still-cancellable order to cancelled in its own
// transaction. Returns false when the order advanced (or vanished) in the
// meantime.
func (r *Repository) CancelOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`, orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) loadItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return err
		}
		if o := byID[it.OrderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func scanOrder(rows pgx.Rows) (domain.Order, error) {
	var o domain.Order
	var status string
	err := rows.Scan(
		&o.ID, &o.UserID, &status, &o.TotalAmount, &o.Currency, &o.ShippingAddress,
		&o.PaymentID, &o.TrackingNumber, &o.Carrier,
		&o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ShippedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// insertOutboxTx wraps data in the canonical envelope and stages it on the
// caller's open transaction, capturing the ambient trace ids.
func (r *Repository) insertOutboxTx(ctx context.Context, tx pgx.Tx, eventType, partitionKey string, data any) error {
	env, err := event.New(eventType, data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	var traceID, spanID, parentSpanID *string
	if sc, ok := tracing.From(ctx); ok && sc.Valid() {
		traceID, spanID = &sc.TraceID, &sc.SpanID
		if sc.ParentSpanID != "" {
			parentSpanID = &sc.ParentSpanID
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (id, event_id, event_type, topic, partition_key, payload, trace_id, span_id, parent_span_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, uuid.New(), env.EventID, eventType, r.topics.For(eventType), partitionKey, payload, traceID, spanID, parentSpanID)
	return err
}

// ReportPoolStats pushes pgx pool gauges until ctx is cancelled.
func (r *Repository) ReportPoolStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat := r.pool.Stat()
			metrics.SetDBPool(stat.AcquiredConns(), stat.IdleConns())
		}
	}
}
