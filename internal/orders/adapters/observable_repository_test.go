package adapters_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dejobratic/orderflow/internal/database"
	"github.com/dejobratic/orderflow/internal/orders/adapters"
	"github.com/dejobratic/orderflow/internal/orders/adapters/memory"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestObservableRepository(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	dbMetrics, err := database.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	repo := adapters.NewObservableRepository(memory.NewRepository(), dbMetrics)
	ctx := context.Background()

	order := &domain.Order{CustomerUsername: "alice", Status: domain.StatusProcessing}
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if order.ID == 0 {
		t.Error("expected ID to be assigned through the decorator")
	}
	if err := repo.UpdateStatus(ctx, order.ID, domain.StatusConfirmed); err != nil {
		t.Fatalf("UpdateStatus() failed: %v", err)
	}
	if _, err := repo.GetByID(ctx, 999); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound to pass through, got %v", err)
	}
	if orders, err := repo.List(ctx, ports.ListFilter{}); err != nil || len(orders) != 1 {
		t.Errorf("expected 1 order, got %d (err %v)", len(orders), err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	operations := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "db_query_duration_seconds" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Histogram[float64]).DataPoints {
				op, _ := dp.Attributes.Value("operation")
				operations[op.AsString()] = true
			}
		}
	}
	for _, want := range []string{"create_order", "update_order_status", "get_order_by_id", "list_orders"} {
		if !operations[want] {
			t.Errorf("expected a duration for %s", want)
		}
	}
}
