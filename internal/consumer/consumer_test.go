package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/order-lifecycle-service/internal/contracts/event"
	"github.com/baechuer/order-lifecycle-service/internal/domain"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
	"github.com/baechuer/order-lifecycle-service/internal/tracing"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard)
	m.Run()
}

type fakeStore struct {
	orders    []domain.Order
	listErr   error
	cancelErr map[uuid.UUID]error
	cancelled []uuid.UUID
}

func (f *fakeStore) CancellableOrders(_ context.Context, userID string) ([]domain.Order, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) CancelOrder(_ context.Context, id uuid.UUID) (bool, error) {
	if err := f.cancelErr[id]; err != nil {
		return false, err
	}
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

type fakeCache struct {
	users     map[string]*domain.User
	processed map[string]bool
	seenErr   error
	deletes   []string
}

func (f *fakeCache) SetUser(_ context.Context, u *domain.User) error {
	if f.users == nil {
		f.users = map[string]*domain.User{}
	}
	f.users[u.UserID] = u
	return nil
}

func (f *fakeCache) DeleteUser(_ context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	delete(f.users, id)
	return nil
}

func (f *fakeCache) SeenEvent(_ context.Context, eventID string) (bool, error) {
	if f.seenErr != nil {
		return false, f.seenErr
	}
	return f.processed[eventID], nil
}

func (f *fakeCache) MarkEventProcessed(_ context.Context, eventID string) error {
	if f.processed == nil {
		f.processed = map[string]bool{}
	}
	f.processed[eventID] = true
	return nil
}

type published struct {
	eventType string
	key       string
	data      any
	trace     tracing.SpanContext
}

type fakePublisher struct {
	err   error
	calls []published
}

func (f *fakePublisher) PublishEvent(ctx context.Context, eventType, key string, data any) error {
	if f.err != nil {
		return f.err
	}
	sc, _ := tracing.From(ctx)
	f.calls = append(f.calls, published{eventType: eventType, key: key, data: data, trace: sc})
	return nil
}

func newConsumer(store *fakeStore, cache *fakeCache, pub *fakePublisher) *Consumer {
	return &Consumer{store: store, cache: cache, pub: pub}
}

func userMessage(t *testing.T, eventType, userID string, headers ...kafka.Header) kafka.Message {
	t.Helper()
	env := event.Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Version:   event.Version,
	}
	data, err := json.Marshal(event.UserEventData{UserID: userID, Email: userID + "@x.io", Status: "active"})
	require.NoError(t, err)
	env.Data = data

	value, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Topic: eventType, Key: []byte(userID), Value: value, Headers: headers}
}

func TestHandleUserCreatedCachesRecord(t *testing.T) {
	cache := &fakeCache{}
	c := newConsumer(&fakeStore{}, cache, &fakePublisher{})

	msg := userMessage(t, event.TypeUserCreated, "user_7")
	require.NoError(t, c.handle(context.Background(), msg))

	require.Contains(t, cache.users, "user_7")
	assert.Equal(t, "user_7@x.io", cache.users["user_7"].Email)
	assert.Len(t, cache.processed, 1, "processed marker written")
}

func TestHandleDuplicateSkipsWork(t *testing.T) {
	cache := &fakeCache{}
	c := newConsumer(&fakeStore{}, cache, &fakePublisher{})
	msg := userMessage(t, event.TypeUserCreated, "user_7")

	require.NoError(t, c.handle(context.Background(), msg))
	usersAfterFirst := len(cache.users)

	// same envelope again
	require.NoError(t, c.handle(context.Background(), msg))
	assert.Equal(t, usersAfterFirst, len(cache.users))
}

func TestHandleMalformedDropped(t *testing.T) {
	c := newConsumer(&fakeStore{}, &fakeCache{}, &fakePublisher{})
	msg := kafka.Message{Topic: "user.created", Value: []byte(`{"not":"an envelope"`)}

	require.NoError(t, c.handle(context.Background(), msg), "poison messages must not block the partition")
}

func TestHandleUnknownEventTypeDropped(t *testing.T) {
	cache := &fakeCache{}
	c := newConsumer(&fakeStore{}, cache, &fakePublisher{})

	msg := userMessage(t, "user.promoted", "user_7")
	require.NoError(t, c.handle(context.Background(), msg))
	assert.Empty(t, cache.users)
}

func TestHandleDedupeErrorRetries(t *testing.T) {
	cache := &fakeCache{seenErr: errors.New("redis down")}
	c := newConsumer(&fakeStore{}, cache, &fakePublisher{})

	msg := userMessage(t, event.TypeUserCreated, "user_7")
	require.Error(t, c.handle(context.Background(), msg), "infra failure must leave the offset uncommitted")
}

func TestUserDeletedCancelsOrders(t *testing.T) {
	o1 := domain.Order{ID: uuid.New(), UserID: "user_7", Status: domain.StatusPending}
	o2 := domain.Order{ID: uuid.New(), UserID: "user_7", Status: domain.StatusConfirmed}
	store := &fakeStore{orders: []domain.Order{o1, o2}}
	cache := &fakeCache{users: map[string]*domain.User{"user_7": {UserID: "user_7"}}}
	pub := &fakePublisher{}
	c := newConsumer(store, cache, pub)

	msg := userMessage(t, event.TypeUserDeleted, "user_7")
	require.NoError(t, c.handle(context.Background(), msg))

	require.Len(t, pub.calls, 2, "one cancel event per order")
	assert.Equal(t, event.TypeOrderCancelled, pub.calls[0].eventType)
	assert.Equal(t, "user_7", pub.calls[0].key, "cancellations are keyed by user so per-user order holds")

	data, ok := pub.calls[0].data.(event.OrderCancelledData)
	require.True(t, ok)
	assert.Equal(t, string(domain.StatusCancelled), data.Status)
	assert.Equal(t, "user_deleted", data.Reason)
	assert.False(t, data.CancelledAt.IsZero())

	assert.ElementsMatch(t, []uuid.UUID{o1.ID, o2.ID}, store.cancelled)
	assert.Equal(t, []string{"user_7"}, cache.deletes)
}

func TestUserDeletedPublishFailureSkipsDBUpdate(t *testing.T) {
	o := domain.Order{ID: uuid.New(), UserID: "user_7", Status: domain.StatusPending}
	store := &fakeStore{orders: []domain.Order{o}}
	pub := &fakePublisher{err: errors.New("broker down")}
	c := newConsumer(store, &fakeCache{}, pub)

	msg := userMessage(t, event.TypeUserDeleted, "user_7")
	require.NoError(t, c.handle(context.Background(), msg))

	assert.Empty(t, store.cancelled, "order must stay cancellable until the event is out")
}

func TestUserDeletedListFailureRetries(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db gone")}
	c := newConsumer(store, &fakeCache{}, &fakePublisher{})

	msg := userMessage(t, event.TypeUserDeleted, "user_7")
	require.Error(t, c.handle(context.Background(), msg))
}

func TestHandleAdoptsInboundTrace(t *testing.T) {
	o := domain.Order{ID: uuid.New(), UserID: "user_7", Status: domain.StatusPending}
	store := &fakeStore{orders: []domain.Order{o}}
	pub := &fakePublisher{}
	c := newConsumer(store, &fakeCache{}, pub)

	header := kafka.Header{Key: tracing.Header, Value: []byte("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")}
	msg := userMessage(t, event.TypeUserDeleted, "user_7", header)
	require.NoError(t, c.handle(context.Background(), msg))

	require.Len(t, pub.calls, 1)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", pub.calls[0].trace.TraceID)
	assert.Equal(t, "b7ad6b7169203331", pub.calls[0].trace.ParentSpanID)
}
