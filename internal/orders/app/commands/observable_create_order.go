package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	return &ObservableCommandHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	outcome := metrics.OutcomeFailed
	defer func() {
		o.metrics.RecordOrderCreationDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordOrderCreated(ctx, outcome)
	}()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.customer_username", cmd.CustomerUsername),
		attribute.Int("order.item_count", len(cmd.Items)),
	)

	o.logger.InfoContext(ctx, "creating order",
		"customer_username", cmd.CustomerUsername,
		"item_count", len(cmd.Items),
	)

	order, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		outcome = classify(err)
		telemetry.RecordSpanError(span, err)

		level := slog.LevelError
		if outcome == metrics.OutcomeRejected {
			level = slog.LevelWarn
		}
		o.logger.Log(ctx, level, "failed to create order",
			"error", err,
			"outcome", outcome,
			"customer_username", cmd.CustomerUsername,
		)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.Int64("order.id", order.ID),
		attribute.String("order.total_price", order.TotalPrice.StringFixed(2)),
		attribute.String("order.status", string(order.Status)),
	)

	o.logger.InfoContext(ctx, "order created successfully",
		"order_id", order.ID,
		"customer_username", order.CustomerUsername,
		"total_price", order.TotalPrice.StringFixed(2),
	)

	outcome = metrics.OutcomeConfirmed
	telemetry.SetSpanSuccess(span)

	return order, nil
}

// classify separates requests the business rules refused from orders that broke down.
func classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrUnavailable):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}
