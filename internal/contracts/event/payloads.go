package event

import "time"

type OrderItemData struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type OrderCreatedData struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	TotalAmount     float64         `json:"total_amount"`
	Currency        string          `json:"currency"`
	ShippingAddress *string         `json:"shipping_address,omitempty"`
	Items           []OrderItemData `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
}

type OrderConfirmedData struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	PaymentID   string    `json:"payment_id"`
	TotalAmount float64   `json:"total_amount"`
	Currency    string    `json:"currency"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type OrderShippedData struct {
	OrderID           string    `json:"order_id"`
	UserID            string    `json:"user_id"`
	Status            string    `json:"status"`
	TrackingNumber    string    `json:"tracking_number"`
	Carrier           string    `json:"carrier"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
	ShippedAt         time.Time `json:"shipped_at"`
}

type OrderCancelledData struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// UserEventData covers all user.* payloads; deleted_at and reason only
// appear on user.deleted.
type UserEventData struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email,omitempty"`
	Name      string     `json:"name,omitempty"`
	Status    string     `json:"status,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
