package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dataKeys marshals a payload through the envelope and returns the wire
// representation of its data object.
func dataKeys(t *testing.T, eventType string, payload any) map[string]any {
	t.Helper()
	env, err := New(eventType, payload)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}

func TestOrderCreatedWireShape(t *testing.T) {
	addr := "1 Main St"
	m := dataKeys(t, TypeOrderCreated, OrderCreatedData{
		OrderID:         "o1",
		UserID:          "user_abc",
		Status:          "pending",
		TotalAmount:     10.0,
		Currency:        "USD",
		ShippingAddress: &addr,
		Items:           []OrderItemData{{ProductID: "p1", Quantity: 1, Price: 10.0}},
		CreatedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "pending", m["status"])
	assert.Equal(t, "1 Main St", m["shipping_address"])
	assert.Contains(t, m, "created_at")

	items, ok := m["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, 10.0, item["price"])
	assert.NotContains(t, item, "unit_price")
}

func TestOrderConfirmedWireShape(t *testing.T) {
	m := dataKeys(t, TypeOrderConfirmed, OrderConfirmedData{
		OrderID:     "o1",
		UserID:      "user_abc",
		Status:      "confirmed",
		PaymentID:   "pay_0011aabbccdd",
		TotalAmount: 10.0,
		Currency:    "USD",
		ConfirmedAt: time.Now().UTC(),
	})

	assert.Equal(t, "confirmed", m["status"])
	assert.Equal(t, 10.0, m["total_amount"])
	assert.Equal(t, "USD", m["currency"])
}

func TestOrderShippedWireShape(t *testing.T) {
	m := dataKeys(t, TypeOrderShipped, OrderShippedData{
		OrderID:        "o1",
		UserID:         "user_abc",
		Status:         "shipped",
		TrackingNumber: "TRK0011AABBCC",
		Carrier:        "FedEx",
		ShippedAt:      time.Now().UTC(),
	})

	assert.Equal(t, "shipped", m["status"])
	assert.Contains(t, m, "estimated_delivery")
}

func TestOrderCancelledWireShape(t *testing.T) {
	m := dataKeys(t, TypeOrderCancelled, OrderCancelledData{
		OrderID:     "o1",
		UserID:      "user_abc",
		Status:      "cancelled",
		Reason:      "user_deleted",
		CancelledAt: time.Now().UTC(),
	})

	assert.Equal(t, "cancelled", m["status"])
	assert.Contains(t, m, "cancelled_at")
	assert.NotContains(t, m, "cancelled_by")
}

func TestUserDeletedWireShape(t *testing.T) {
	now := time.Now().UTC()
	m := dataKeys(t, TypeUserDeleted, UserEventData{
		UserID:    "user_abc",
		DeletedAt: &now,
		Reason:    "account_closed",
	})

	assert.Contains(t, m, "deleted_at")
	assert.Equal(t, "account_closed", m["reason"])

	// created/updated payloads never leak the deletion fields
	m = dataKeys(t, TypeUserCreated, UserEventData{UserID: "user_abc", Email: "a@b.c", Name: "A", Status: "active"})
	assert.NotContains(t, m, "deleted_at")
	assert.NotContains(t, m, "reason")
}
