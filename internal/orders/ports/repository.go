package ports

import (
	"context"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

// OrderRepository is the only writer of order and order item rows.
type OrderRepository interface {
	// Create stores the order and all of its items atomically. It assigns order.ID,
	// every item ID and every item's OrderID.
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error
}

// ListFilter narrows list queries by status and pagination.
type ListFilter struct {
	Status   *domain.OrderStatus
	Page     int
	PageSize int
}

// ErrNotFound is returned when the requested order does not exist.
var ErrNotFound = domain.ErrNotFound
