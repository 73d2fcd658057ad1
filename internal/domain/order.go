package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// transitions is the order state machine. shipped/delivered/cancelled are
// terminal except shipped -> delivered.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in this status may still be cancelled
// (used by the user-deleted cleanup path).
func (s OrderStatus) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID string
	Quantity  int
	UnitPrice float64
}

type Order struct {
	ID              uuid.UUID
	UserID          string
	Status          OrderStatus
	TotalAmount     float64
	Currency        string
	ShippingAddress *string

	PaymentID      *string
	TrackingNumber *string
	Carrier        *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	ShippedAt   *time.Time

	Items []OrderItem
}
