// Package processor advances orders through their lifecycle on a timer:
// pending orders confirm after a payment-settlement delay, confirmed orders
// ship after a fulfilment delay. Each transition runs in its own DB
// transaction and stages the matching outbox event.
package processor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baechuer/order-lifecycle-service/internal/metrics"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
	"github.com/baechuer/order-lifecycle-service/internal/tracing"
)

const defaultCarrier = "FedEx"

// Store is the slice of the Postgres repository the processor drives.
type Store interface {
	DueForConfirmation(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	DueForShipping(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ConfirmOrder(ctx context.Context, orderID uuid.UUID, cutoff time.Time, paymentID string) (bool, error)
	ShipOrder(ctx context.Context, orderID uuid.UUID, cutoff time.Time, trackingNumber, carrier string) (bool, error)
	TraceForOrder(ctx context.Context, orderID uuid.UUID) (traceID, spanID string, ok bool, err error)
}

type Config struct {
	ConfirmDelay time.Duration
	ShipDelay    time.Duration
	Interval     time.Duration
	BatchSize    int
}

type Processor struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func New(store Store, cfg Config) *Processor {
	return &Processor{store: store, cfg: cfg, now: time.Now}
}

// Run ticks until ctx is cancelled. Scan errors back the loop off until the
// next tick; per-order errors are logged and the batch continues.
func (p *Processor) Run(ctx context.Context) {
	log := logger.Logger.With().Str("component", "order_processor").Logger()

	metrics.TaskUp("order_processor")
	defer metrics.TaskDown("order_processor")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return
		case <-ticker.C:
			if err := p.Cycle(ctx); err != nil {
				metrics.RecordTaskError("order_processor")
				log.Error().Err(err).Msg("processor cycle failed")
			}
		}
	}
}

// Cycle runs one confirmation sweep and one shipping sweep.
func (p *Processor) Cycle(ctx context.Context) error {
	if err := p.confirmDue(ctx); err != nil {
		return err
	}
	return p.shipDue(ctx)
}

func (p *Processor) confirmDue(ctx context.Context) error {
	cutoff := p.now().UTC().Add(-p.cfg.ConfirmDelay)
	ids, err := p.store.DueForConfirmation(ctx, cutoff, p.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, id := range ids {
		octx, log := p.orderContext(ctx, id)
		ok, err := p.store.ConfirmOrder(octx, id, cutoff, NewPaymentID())
		if err != nil {
			metrics.RecordTaskError("order_processor")
			log.Error().Err(err).Str("order_id", id.String()).Msg("confirm failed")
			continue
		}
		if ok {
			log.Info().Str("order_id", id.String()).Msg("order confirmed")
		}
	}
	return nil
}

func (p *Processor) shipDue(ctx context.Context) error {
	cutoff := p.now().UTC().Add(-p.cfg.ShipDelay)
	ids, err := p.store.DueForShipping(ctx, cutoff, p.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, id := range ids {
		octx, log := p.orderContext(ctx, id)
		ok, err := p.store.ShipOrder(octx, id, cutoff, NewTrackingNumber(), defaultCarrier)
		if err != nil {
			metrics.RecordTaskError("order_processor")
			log.Error().Err(err).Str("order_id", id.String()).Msg("ship failed")
			continue
		}
		if ok {
			log.Info().Str("order_id", id.String()).Msg("order shipped")
		}
	}
	return nil
}

// orderContext continues the trace that created the order, so a lifecycle
// event's span chains back to the originating API request. Orders without
// captured trace ids get a fresh trace.
func (p *Processor) orderContext(ctx context.Context, orderID uuid.UUID) (context.Context, *zerolog.Logger) {
	var sc tracing.SpanContext
	traceID, spanID, ok, err := p.store.TraceForOrder(ctx, orderID)
	if err != nil || !ok {
		sc = tracing.New()
	} else {
		sc = tracing.Continue(traceID, "", spanID)
	}

	log := logger.Logger.With().
		Str("component", "order_processor").
		Str("trace_id", sc.TraceID).
		Str("span_id", sc.SpanID).
		Logger()
	return tracing.With(ctx, sc), &log
}

// NewPaymentID mints pay_ followed by 12 hex chars.
func NewPaymentID() string {
	return "pay_" + randomHex(6)
}

// NewTrackingNumber mints TRK followed by 10 uppercase hex chars.
func NewTrackingNumber() string {
	return "TRK" + strings.ToUpper(randomHex(5))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
