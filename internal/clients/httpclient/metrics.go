package httpclient

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	callDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.callDuration, err = meter.Float64Histogram(
		"remote_call_duration_seconds",
		metric.WithDescription("Duration of calls to collaborating services"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create remote_call_duration histogram: %w", err)
	}

	return m, nil
}

// RecordCall records one attempt. A zero status means no response was received.
func (m *Metrics) RecordCall(ctx context.Context, service, operation string, status int, durationSeconds float64) {
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	m.callDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("operation", operation),
		attribute.String("status", label),
	))
}
