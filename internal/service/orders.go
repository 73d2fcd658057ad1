package service

import (
	"context"
	"fmt"

	"github.com/baechuer/order-lifecycle-service/internal/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 100
)

type Orders struct {
	store OrderStore
	users *Users
}

func NewOrders(store OrderStore, users *Users) *Orders {
	return &Orders{store: store, users: users}
}

type CreateOrderItem struct {
	ProductID string
	Quantity  int
	UnitPrice float64
}

type CreateOrderInput struct {
	UserID          string
	TotalAmount     float64
	Currency        string
	ShippingAddress *string
	Items           []CreateOrderItem
}

// Create validates the owner against the user directory, then persists the
// order, its items and the order.created outbox row atomically. The client
// states the total; it is carried as given.
func (s *Orders) Create(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	u, err := s.users.Validate(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("validate user: %w", err)
	}
	if u == nil {
		return nil, domain.ErrNotFound("user not found or inactive")
	}

	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}

	o := &domain.Order{
		UserID:          in.UserID,
		TotalAmount:     in.TotalAmount,
		Currency:        currency,
		ShippingAddress: in.ShippingAddress,
	}
	for _, it := range in.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns a page of orders newest-first. skip/limit are clamped to
// sane bounds rather than rejected.
func (s *Orders) List(ctx context.Context, skip, limit int) ([]domain.Order, int, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListOrders(ctx, skip, limit)
}

func validateCreate(in CreateOrderInput) error {
	if in.UserID == "" {
		return domain.ErrValidation("user_id is required")
	}
	if len(in.Items) == 0 {
		return domain.ErrValidation("order must contain at least one item")
	}
	if in.Currency != "" && len(in.Currency) != 3 {
		return domain.ErrValidation("currency must be a 3-letter code")
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return domain.ErrValidationMeta("product_id is required", map[string]string{"item": fmt.Sprint(i)})
		}
		if it.Quantity <= 0 {
			return domain.ErrValidationMeta("quantity must be positive", map[string]string{"item": fmt.Sprint(i)})
		}
		if it.UnitPrice < 0 {
			return domain.ErrValidationMeta("unit_price must not be negative", map[string]string{"item": fmt.Sprint(i)})
		}
	}
	return nil
}
