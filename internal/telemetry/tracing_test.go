package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestSpanHelpers(t *testing.T) {
	recorder := setupRecorder(t)

	ctx, parent := StartSpan(context.Background(), "CreateOrder")
	_, child := StartSpan(ctx, "CreateOrder.CommitInventory")

	AddSpanAttributes(child, attribute.Int64("order.id", 7))
	AddSpanEvent(child, "inventory.compensated", attribute.String("failed_step", "decrement_inventory:B"))
	RecordSpanError(child, errors.New("catalog rejected decrement"))
	child.End()

	SetSpanSuccess(parent)
	parent.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	inner := spans[0]
	if inner.Name() != "CreateOrder.CommitInventory" {
		t.Errorf("unexpected span name %s", inner.Name())
	}
	if inner.Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("expected child span to be parented")
	}
	if inner.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", inner.Status())
	}
	if len(inner.Attributes()) != 1 || inner.Attributes()[0].Key != "order.id" {
		t.Errorf("unexpected attributes %v", inner.Attributes())
	}

	var eventNames []string
	for _, e := range inner.Events() {
		eventNames = append(eventNames, e.Name)
	}
	if len(eventNames) != 2 || eventNames[0] != "inventory.compensated" || eventNames[1] != "exception" {
		t.Errorf("unexpected events %v", eventNames)
	}

	if spans[1].Status().Code != codes.Ok {
		t.Errorf("expected OK status on parent, got %v", spans[1].Status())
	}
}

func TestHelpersTolerateNil(t *testing.T) {
	AddSpanAttributes(nil, attribute.String("k", "v"))
	AddSpanEvent(nil, "event")
	RecordSpanError(nil, errors.New("x"))
	SetSpanSuccess(nil)

	_, span := StartSpan(context.Background(), "noop")
	RecordSpanError(span, nil)
	span.End()
}

func TestStartSpanSetsInitialAttributes(t *testing.T) {
	recorder := setupRecorder(t)

	_, span := StartSpan(context.Background(), "OrderRepository.Create", attribute.String("operation", "create_order"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].SpanKind() != trace.SpanKindInternal {
		t.Errorf("expected internal span kind, got %v", spans[0].SpanKind())
	}
	attrs := spans[0].Attributes()
	if len(attrs) != 1 || attrs[0].Value.AsString() != "create_order" {
		t.Errorf("unexpected attributes %v", attrs)
	}
}

func TestSpanIDs(t *testing.T) {
	setupRecorder(t)

	if traceID, spanID := SpanIDs(context.Background()); traceID != "" || spanID != "" {
		t.Error("expected empty IDs without a span")
	}

	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()

	traceID, spanID := SpanIDs(ctx)
	if traceID != span.SpanContext().TraceID().String() {
		t.Error("trace ID mismatch")
	}
	if spanID != span.SpanContext().SpanID().String() {
		t.Error("span ID mismatch")
	}
}
