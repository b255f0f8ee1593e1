package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/orderflow/internal/database"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ObservableRepository traces every repository call and records its duration.
type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.observe(ctx, "Create", "create_order", func(ctx context.Context) error {
		return r.repo.Create(ctx, order)
	},
		attribute.String("order.customer", order.CustomerUsername),
		attribute.Int("order.item_count", len(order.Items)),
	)
}

func (r *ObservableRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var order *domain.Order
	err := r.observe(ctx, "GetByID", "get_order_by_id", func(ctx context.Context) error {
		var err error
		order, err = r.repo.GetByID(ctx, id)
		return err
	}, attribute.Int64("order.id", id))
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}

	var orders []domain.Order
	err := r.observe(ctx, "List", "list_orders", func(ctx context.Context) error {
		var err error
		orders, err = r.repo.List(ctx, filter)
		return err
	}, attrs...)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *ObservableRepository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	return r.observe(ctx, "UpdateStatus", "update_order_status", func(ctx context.Context) error {
		return r.repo.UpdateStatus(ctx, id, status)
	},
		attribute.Int64("order.id", id),
		attribute.String("order.new_status", string(status)),
	)
}

func (r *ObservableRepository) observe(
	ctx context.Context,
	method, operation string,
	call func(context.Context) error,
	attrs ...attribute.KeyValue,
) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository."+method)
	defer span.End()

	telemetry.AddSpanAttributes(span, append(attrs, attribute.String("operation", operation))...)

	start := time.Now()
	err := call(ctx)
	r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds(), err)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
