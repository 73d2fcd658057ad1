package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical wire format for every event this service
// produces or consumes. Data is kept raw on the consume path so unknown
// event types can be skipped without a full decode.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
}

const Version = "1.0"

// Event types on the producer side.
const (
	TypeOrderCreated   = "order.created"
	TypeOrderConfirmed = "order.confirmed"
	TypeOrderShipped   = "order.shipped"
	TypeOrderCancelled = "order.cancelled"
)

// Event types on the consumer side (user directory).
const (
	TypeUserCreated = "user.created"
	TypeUserUpdated = "user.updated"
	TypeUserDeleted = "user.deleted"
)

// New wraps data in a fresh envelope with a minted event id and a UTC
// timestamp.
func New(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Data:      raw,
	}, nil
}

// Topics maps each event type to its Kafka topic. Built once from config and
// passed to every producer-side component.
type Topics struct {
	OrderCreated   string
	OrderConfirmed string
	OrderShipped   string
	OrderCancelled string
	UserCreated    string
	UserUpdated    string
	UserDeleted    string
}

// For returns the topic for eventType, empty when unknown.
func (t Topics) For(eventType string) string {
	switch eventType {
	case TypeOrderCreated:
		return t.OrderCreated
	case TypeOrderConfirmed:
		return t.OrderConfirmed
	case TypeOrderShipped:
		return t.OrderShipped
	case TypeOrderCancelled:
		return t.OrderCancelled
	case TypeUserCreated:
		return t.UserCreated
	case TypeUserUpdated:
		return t.UserUpdated
	case TypeUserDeleted:
		return t.UserDeleted
	}
	return ""
}

// UserTopics lists the topics the consumer subscribes to.
func (t Topics) UserTopics() []string {
	return []string{t.UserCreated, t.UserUpdated, t.UserDeleted}
}
