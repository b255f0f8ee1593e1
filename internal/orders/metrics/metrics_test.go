package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestInitializeMetrics(t *testing.T) {
	metrics, _ := newTestMetrics(t)

	if metrics.ordersCreatedTotal == nil {
		t.Error("ordersCreatedTotal is nil")
	}
	if metrics.orderCreationDuration == nil {
		t.Error("orderCreationDuration is nil")
	}
	if metrics.followUpFailuresTotal == nil {
		t.Error("followUpFailuresTotal is nil")
	}
}

func TestRecordOrderCreated(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordOrderCreated(ctx, OutcomeConfirmed)
	metrics.RecordOrderCreated(ctx, OutcomeRejected)
	metrics.RecordOrderCreated(ctx, OutcomeRejected)

	m, found := collect(t, reader, "orders_created_total")
	if !found {
		t.Fatal("orders_created_total metric not found")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("Expected Sum[int64] data type")
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("Expected 2 data points (one per outcome), got %d", len(sum.DataPoints))
	}
}

func TestRecordOrderCreationDuration(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordOrderCreationDuration(ctx, 1.5)
	metrics.RecordOrderCreationDuration(ctx, 2.3)

	m, found := collect(t, reader, "order_creation_duration_seconds")
	if !found {
		t.Fatal("order_creation_duration_seconds metric not found")
	}
	histogram, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("Expected Histogram[float64] data type")
	}
	if len(histogram.DataPoints) != 1 || histogram.DataPoints[0].Count != 2 {
		t.Errorf("Expected a single data point with count=2, got %+v", histogram.DataPoints)
	}
}

func TestRecordFollowUpFailure(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordFollowUpFailure(ctx, "remove_cart_item")
	metrics.RecordFollowUpFailure(ctx, "send_confirmation")

	m, found := collect(t, reader, "order_followup_failures_total")
	if !found {
		t.Fatal("order_followup_failures_total metric not found")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("Expected Sum[int64] data type")
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("Expected 2 data points, got %d", len(sum.DataPoints))
	}
}
