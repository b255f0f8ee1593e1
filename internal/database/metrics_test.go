package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordQueryCountsOnlyRealFailures(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	metrics.RecordQuery(ctx, "get_order_by_id", 0.002, nil)
	metrics.RecordQuery(ctx, "get_order_by_id", 0.001, fmt.Errorf("%w: id 7", domain.ErrNotFound))
	metrics.RecordQuery(ctx, "create_order", 0.010, errors.New("connection reset"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	var durations uint64
	errorsByOp := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "db_query_duration_seconds":
				for _, dp := range m.Data.(metricdata.Histogram[float64]).DataPoints {
					durations += dp.Count
				}
			case "db_query_errors_total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					op, _ := dp.Attributes.Value("operation")
					errorsByOp[op.AsString()] += dp.Value
				}
			}
		}
	}

	if durations != 3 {
		t.Errorf("expected 3 recorded durations, got %d", durations)
	}
	if errorsByOp["create_order"] != 1 {
		t.Errorf("expected 1 create_order error, got %d", errorsByOp["create_order"])
	}
	if errorsByOp["get_order_by_id"] != 0 {
		t.Errorf("expected not-found to be excluded, got %d", errorsByOp["get_order_by_id"])
	}
}
