package commands_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dejobratic/orderflow/internal/orders/adapters/memory"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/shopspring/decimal"
)

var errServiceDown = errors.New("service down")

// logBuffer collects log output written from several goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type mockIdentity struct {
	mu              sync.Mutex
	verifyFn        func(ctx context.Context, username string) (bool, error)
	upsertFn        func(ctx context.Context, username string, profile domain.CustomerProfile) error
	emailFn         func(ctx context.Context, username string) (string, bool, error)
	verifyCalls     int
	upsertedProfile *domain.CustomerProfile
}

func (m *mockIdentity) VerifyPermission(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	m.verifyCalls++
	m.mu.Unlock()
	if m.verifyFn != nil {
		return m.verifyFn(ctx, username)
	}
	return true, nil
}

func (m *mockIdentity) UpsertCustomerProfile(ctx context.Context, username string, profile domain.CustomerProfile) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, username, profile)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertedProfile = &profile
	return nil
}

func (m *mockIdentity) GetUserEmail(ctx context.Context, username string) (string, bool, error) {
	if m.emailFn != nil {
		return m.emailFn(ctx, username)
	}
	return username + "@example.com", true, nil
}

type inventoryCall struct {
	ProductID string
	Quantity  int
}

type mockCatalog struct {
	mu            sync.Mutex
	prices        map[string]decimal.Decimal
	unavailable   map[string]bool
	decrementErrs map[string]error
	priceCalls    []string
	decrements    []inventoryCall
	restores      []inventoryCall
}

func newMockCatalog(prices map[string]string) *mockCatalog {
	c := &mockCatalog{
		prices:        make(map[string]decimal.Decimal),
		unavailable:   make(map[string]bool),
		decrementErrs: make(map[string]error),
	}
	for id, price := range prices {
		c.prices[id] = decimal.RequireFromString(price)
	}
	return c
}

func (m *mockCatalog) GetProductPrice(_ context.Context, productID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceCalls = append(m.priceCalls, productID)
	price, ok := m.prices[productID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown product %s", domain.ErrRemote, productID)
	}
	return price, nil
}

func (m *mockCatalog) CheckAvailability(_ context.Context, productID string, _ int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable[productID], nil
}

func (m *mockCatalog) DecrementInventory(_ context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.decrementErrs[productID]; err != nil {
		return err
	}
	m.decrements = append(m.decrements, inventoryCall{productID, quantity})
	return nil
}

func (m *mockCatalog) RestoreInventory(_ context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restores = append(m.restores, inventoryCall{productID, quantity})
	return nil
}

type mockCart struct {
	mu       sync.Mutex
	removeFn func(ctx context.Context, username, productID string) error
	removed  []string
}

func (m *mockCart) RemoveCartItem(ctx context.Context, username, productID string) error {
	if m.removeFn != nil {
		if err := m.removeFn(ctx, username, productID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, productID)
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, c ports.Confirmation) error
	sent   []ports.Confirmation
}

func (m *mockNotifier) SendConfirmation(ctx context.Context, c ports.Confirmation) error {
	m.mu.Lock()
	m.sent = append(m.sent, c)
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, c)
	}
	return nil
}

type mockEventBus struct {
	mu        sync.Mutex
	confirmed []int64
	failed    []int64
}

func (m *mockEventBus) PublishOrderConfirmed(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed = append(m.confirmed, order.ID)
	return nil
}

func (m *mockEventBus) PublishOrderFailed(_ context.Context, orderID int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, orderID)
	return nil
}

// flakyRepository fails selected writes and delegates everything else.
type flakyRepository struct {
	*memory.Repository
	createErr error
	updateErr func(status domain.OrderStatus) error
}

func (r *flakyRepository) Create(ctx context.Context, order *domain.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.Repository.Create(ctx, order)
}

func (r *flakyRepository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	if r.updateErr != nil {
		if err := r.updateErr(status); err != nil {
			return err
		}
	}
	return r.Repository.UpdateStatus(ctx, id, status)
}
