package postgres

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard)
	m.Run()
}

type publishedMsg struct {
	topic       string
	key         string
	traceparent string
}

type fakePublisher struct {
	calls   []publishedMsg
	failFor map[string]error // keyed by event_id
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key, value []byte, traceparent string) error {
	f.calls = append(f.calls, publishedMsg{topic: topic, key: string(key), traceparent: traceparent})
	// test rows carry their event_id as the payload so failures can be targeted
	if err := f.failFor[string(value)]; err != nil {
		return err
	}
	return nil
}

func relayRow(eventID string, attempts int) outboxRow {
	key := "user_abc"
	return outboxRow{
		ID:           uuid.New(),
		EventID:      eventID,
		EventType:    "order.created",
		Topic:        "order.created",
		PartitionKey: &key,
		Payload:      []byte(eventID),
		Attempts:     attempts,
	}
}

func relayCfg() RelayConfig {
	return RelayConfig{BatchSize: 100, MaxAttempts: 5, ErrMsgMaxLen: 500}
}

func TestPublishClaimedFailureIsolation(t *testing.T) {
	pub := &fakePublisher{failFor: map[string]error{"ev2": errors.New("broker down")}}
	batch := []outboxRow{relayRow("ev1", 0), relayRow("ev2", 0), relayRow("ev3", 0)}

	var marked []uuid.UUID
	published, failures, err := publishClaimed(context.Background(), relayCfg(), pub, batch,
		func(_ context.Context, id uuid.UUID) error {
			marked = append(marked, id)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, 2, published, "the failing row must not block the rest")
	assert.Equal(t, []uuid.UUID{batch[0].ID, batch[2].ID}, marked)

	require.Len(t, failures, 1)
	assert.Equal(t, "ev2", failures[0].row.EventID)
	assert.Equal(t, "broker down", failures[0].errMsg)

	require.Len(t, pub.calls, 3, "rows go out in claim order")
	assert.Equal(t, "user_abc", pub.calls[0].key)
}

func TestPublishClaimedSkipsParkedRows(t *testing.T) {
	cfg := relayCfg()
	pub := &fakePublisher{}
	batch := []outboxRow{relayRow("fresh", 0), relayRow("parked", cfg.MaxAttempts)}

	var marked []uuid.UUID
	published, failures, err := publishClaimed(context.Background(), cfg, pub, batch,
		func(_ context.Context, id uuid.UUID) error {
			marked = append(marked, id)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, 1, published)
	assert.Empty(t, failures, "a parked row is neither published nor retried")
	require.Len(t, pub.calls, 1)
	assert.Equal(t, []uuid.UUID{batch[0].ID}, marked)
}

func TestPublishClaimedTraceparentHeader(t *testing.T) {
	traceID := "0af7651916cd43dd8448eb211c80319c"
	spanID := "b7ad6b7169203331"

	withTrace := relayRow("traced", 0)
	withTrace.TraceID = &traceID
	withTrace.SpanID = &spanID
	batch := []outboxRow{withTrace, relayRow("untraced", 0)}

	pub := &fakePublisher{}
	_, _, err := publishClaimed(context.Background(), relayCfg(), pub, batch,
		func(context.Context, uuid.UUID) error { return nil })
	require.NoError(t, err)

	require.Len(t, pub.calls, 2)
	assert.Equal(t, "00-"+traceID+"-"+spanID+"-01", pub.calls[0].traceparent)
	assert.Empty(t, pub.calls[1].traceparent, "rows without captured ids carry no header")
}

func TestPublishClaimedTruncatesErrors(t *testing.T) {
	cfg := relayCfg()
	cfg.ErrMsgMaxLen = 10
	pub := &fakePublisher{failFor: map[string]error{"ev1": errors.New(strings.Repeat("x", 100))}}

	_, failures, err := publishClaimed(context.Background(), cfg, pub, []outboxRow{relayRow("ev1", 0)},
		func(context.Context, uuid.UUID) error { return nil })
	require.NoError(t, err)

	require.Len(t, failures, 1)
	assert.Len(t, failures[0].errMsg, 10)
}

func TestPublishClaimedMarkFailureAborts(t *testing.T) {
	pub := &fakePublisher{}
	batch := []outboxRow{relayRow("ev1", 0), relayRow("ev2", 0)}

	_, _, err := publishClaimed(context.Background(), relayCfg(), pub, batch,
		func(context.Context, uuid.UUID) error { return errors.New("tx gone") })
	require.Error(t, err, "a dead batch transaction cannot make progress")
}

func TestTruncateBoundsErrorMessages(t *testing.T) {
	long := strings.Repeat("x", 2000)

	assert.Len(t, truncate(long, 500), 500)
	assert.Equal(t, "short", truncate("short", 500))
	assert.Equal(t, long, truncate(long, 0), "zero max disables truncation")
	assert.Equal(t, "", truncate("", 500))
}
