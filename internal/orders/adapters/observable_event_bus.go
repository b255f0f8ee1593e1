package adapters

import (
	"context"

	"github.com/dejobratic/orderflow/internal/kafka"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ObservableEventBus wraps publishes in spans. Publish latency is recorded by the producer.
type ObservableEventBus struct {
	bus ports.EventBus
}

func NewObservableEventBus(bus ports.EventBus) *ObservableEventBus {
	return &ObservableEventBus{bus: bus}
}

func (e *ObservableEventBus) PublishOrderConfirmed(ctx context.Context, order domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishOrderConfirmed")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.Int64("order.id", order.ID),
		attribute.String("topic", kafka.TopicOrderConfirmed),
	)

	if err := e.bus.PublishOrderConfirmed(ctx, order); err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventBus) PublishOrderFailed(ctx context.Context, orderID int64, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishOrderFailed")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.Int64("order.id", orderID),
		attribute.String("topic", kafka.TopicOrderFailed),
		attribute.String("failure.reason", reason),
	)

	if err := e.bus.PublishOrderFailed(ctx, orderID, reason); err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
