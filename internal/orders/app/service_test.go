package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	idemmemory "github.com/dejobratic/orderflow/internal/idempotency/memory"
	"github.com/dejobratic/orderflow/internal/kafka"
	"github.com/dejobratic/orderflow/internal/orders/adapters/memory"
	"github.com/dejobratic/orderflow/internal/orders/app"
	"github.com/dejobratic/orderflow/internal/orders/app/commands"
	"github.com/dejobratic/orderflow/internal/orders/app/followup"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/shopspring/decimal"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type stubIdentity struct{}

func (stubIdentity) VerifyPermission(context.Context, string) (bool, error) { return true, nil }
func (stubIdentity) UpsertCustomerProfile(context.Context, string, domain.CustomerProfile) error {
	return nil
}
func (stubIdentity) GetUserEmail(context.Context, string) (string, bool, error) { return "", false, nil }

type stubCatalog struct{}

func (stubCatalog) GetProductPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.RequireFromString("2.50"), nil
}
func (stubCatalog) CheckAvailability(context.Context, string, int) (bool, error) { return true, nil }
func (stubCatalog) DecrementInventory(context.Context, string, int) error      { return nil }
func (stubCatalog) RestoreInventory(context.Context, string, int) error        { return nil }

type stubCart struct{}

func (stubCart) RemoveCartItem(context.Context, string, string) error { return nil }

type stubNotifier struct{}

func (stubNotifier) SendConfirmation(context.Context, ports.Confirmation) error { return nil }

func newService(t *testing.T) (*app.Service, *followup.Dispatcher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := metrics.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	dispatcher := followup.NewDispatcher(logger, followup.WithFailureRecorder(m))
	svc := app.NewService(
		memory.NewRepository(),
		kafka.NewNoopEventBus(),
		idemmemory.NewStore(),
		commands.Collaborators{
			Identity: stubIdentity{},
			Catalog:  stubCatalog{},
			Cart:     stubCart{},
			Notifier: stubNotifier{},
		},
		dispatcher,
		logger,
		m,
	)
	return svc, dispatcher
}

func TestService(t *testing.T) {
	t.Run("created order can be read back", func(t *testing.T) {
		svc, dispatcher := newService(t)
		ctx := context.Background()
		delivery := time.Now().Add(72 * time.Hour)

		created, err := svc.CreateOrder(ctx, app.CreateOrderInput{
			CustomerUsername: "bob",
			DeliveryDate:     &delivery,
			Items:            []app.CreateOrderItemInput{{ProductID: "p-1", Quantity: 4}},
		})
		if err != nil {
			t.Fatalf("CreateOrder() failed: %v", err)
		}
		if err := dispatcher.Wait(ctx); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}

		fetched, err := svc.GetOrder(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetOrder() failed: %v", err)
		}
		if fetched.Status != domain.StatusConfirmed {
			t.Errorf("expected CONFIRMED, got %s", fetched.Status)
		}
		if got := fetched.TotalPrice.StringFixed(2); got != "10.00" {
			t.Errorf("expected total 10.00, got %s", got)
		}
	})

	t.Run("unknown order is not found", func(t *testing.T) {
		svc, _ := newService(t)

		order, err := svc.GetOrder(context.Background(), 12345)

		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if order != nil {
			t.Errorf("expected nil order, got %+v", order)
		}
	})

	t.Run("idempotent responses round trip", func(t *testing.T) {
		svc, _ := newService(t)
		ctx := context.Background()

		if _, claimed, err := svc.ClaimIdempotencyKey(ctx, "key-1"); err != nil || !claimed {
			t.Fatalf("expected fresh key to be claimed, got %v (err %v)", claimed, err)
		}
		if _, claimed, _ := svc.ClaimIdempotencyKey(ctx, "key-1"); claimed {
			t.Error("expected in-flight key to refuse a second claim")
		}
		if err := svc.SaveIdempotentResponse(ctx, "key-1", ports.StoredResponse{StatusCode: 201, OrderID: 9}); err != nil {
			t.Fatalf("SaveIdempotentResponse() failed: %v", err)
		}

		stored, claimed, err := svc.ClaimIdempotencyKey(ctx, "key-1")
		if err != nil || claimed || stored == nil || stored.OrderID != 9 {
			t.Errorf("unexpected stored response %+v, err %v", stored, err)
		}
	})

	t.Run("released key can be claimed again", func(t *testing.T) {
		svc, _ := newService(t)
		ctx := context.Background()

		_, _, _ = svc.ClaimIdempotencyKey(ctx, "key-2")
		if err := svc.ReleaseIdempotencyKey(ctx, "key-2"); err != nil {
			t.Fatalf("ReleaseIdempotencyKey() failed: %v", err)
		}
		if _, claimed, err := svc.ClaimIdempotencyKey(ctx, "key-2"); err != nil || !claimed {
			t.Errorf("expected released key to be claimable, got %v (err %v)", claimed, err)
		}
	})
}
