package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := New(TypeOrderCreated, OrderCreatedData{
		OrderID:     "o1",
		UserID:      "user_1",
		TotalAmount: 42.5,
		Currency:    "USD",
	})
	require.NoError(t, err)

	_, err = uuid.Parse(env.EventID)
	require.NoError(t, err, "event_id must be a uuid")
	assert.Equal(t, TypeOrderCreated, env.EventType)
	assert.Equal(t, Version, env.Version)
	assert.WithinDuration(t, time.Now().UTC(), env.Timestamp, 2*time.Second)

	var data OrderCreatedData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "o1", data.OrderID)
	assert.Equal(t, 42.5, data.TotalAmount)
}

func TestEnvelopeToleratesUnknownDataFields(t *testing.T) {
	raw := []byte(`{
		"event_id": "e-1",
		"event_type": "user.created",
		"timestamp": "2026-01-02T03:04:05Z",
		"version": "1.0",
		"data": {"user_id": "user_9", "email": "a@b.c", "plan": "premium"}
	}`)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	var data UserEventData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "user_9", data.UserID)
	assert.Equal(t, "a@b.c", data.Email)
}

func TestTopicsFor(t *testing.T) {
	topics := Topics{
		OrderCreated: "order.created",
		UserDeleted:  "user.deleted",
	}
	assert.Equal(t, "order.created", topics.For(TypeOrderCreated))
	assert.Equal(t, "user.deleted", topics.For(TypeUserDeleted))
	assert.Empty(t, topics.For("order.exploded"))
}
