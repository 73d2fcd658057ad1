package service

import (
	"context"

	"github.com/baechuer/order-lifecycle-service/internal/domain"
)

// OrderStore is the slice of the Postgres repository the API needs.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	ListOrders(ctx context.Context, skip, limit int) ([]domain.Order, int, error)
}

// UserCache is the Redis-backed user record cache.
type UserCache interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	SetUser(ctx context.Context, u *domain.User) error
}

// UserDirectory is the upstream source of truth for user records.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}
