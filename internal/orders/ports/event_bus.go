package ports

import (
	"context"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

// EventBus defines the contract for publishing order lifecycle events.
type EventBus interface {
	PublishOrderConfirmed(ctx context.Context, order domain.Order) error
	PublishOrderFailed(ctx context.Context, orderID int64, reason string) error
}
