package ports

import (
	"context"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/shopspring/decimal"
)

// IdentityClient talks to the service that owns user accounts.
type IdentityClient interface {
	VerifyPermission(ctx context.Context, username string) (bool, error)
	UpsertCustomerProfile(ctx context.Context, username string, profile domain.CustomerProfile) error
	// GetUserEmail reports ok=false when the user has no email on record.
	GetUserEmail(ctx context.Context, username string) (email string, ok bool, err error)
}

// CatalogClient talks to the service that owns products, prices and stock.
type CatalogClient interface {
	GetProductPrice(ctx context.Context, productID string) (decimal.Decimal, error)
	CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error)
	DecrementInventory(ctx context.Context, productID string, quantity int) error
	// RestoreInventory reverses a previous DecrementInventory.
	RestoreInventory(ctx context.Context, productID string, quantity int) error
}

// CartClient talks to the shopping cart service.
type CartClient interface {
	RemoveCartItem(ctx context.Context, username, productID string) error
}

// Confirmation is the content of an order confirmation message.
type Confirmation struct {
	Email      string
	OrderID    int64
	Status     domain.OrderStatus
	Items      []domain.OrderItem
	TotalPrice decimal.Decimal
}

// Notifier delivers order confirmations to customers.
type Notifier interface {
	SendConfirmation(ctx context.Context, confirmation Confirmation) error
}
