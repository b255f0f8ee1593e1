package kafka

import (
	"context"
	"log/slog"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

// NoopEventBus logs events without sending them to Kafka. Used when no brokers are configured.
type NoopEventBus struct{}

// NewNoopEventBus returns a new no-op event publisher.
func NewNoopEventBus() *NoopEventBus {
	return &NoopEventBus{}
}

func (n *NoopEventBus) PublishOrderConfirmed(ctx context.Context, order domain.Order) error {
	slog.DebugContext(ctx, "event::order_confirmed", "order_id", order.ID)
	return nil
}

func (n *NoopEventBus) PublishOrderFailed(ctx context.Context, orderID int64, reason string) error {
	slog.DebugContext(ctx, "event::order_failed", "order_id", orderID, "reason", reason)
	return nil
}
