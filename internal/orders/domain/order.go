package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus captures the lifecycle of an order in the system.
type OrderStatus string

const (
	StatusProcessing OrderStatus = "PROCESSING"
	StatusConfirmed  OrderStatus = "CONFIRMED"
	StatusFailed     OrderStatus = "FAILED"
)

// MinDeliveryLead is the shortest allowed gap between placing an order and delivering it.
const MinDeliveryLead = 48 * time.Hour

// Order is the locally persisted record of a customer purchase.
type Order struct {
	ID               int64           `json:"id"`
	CustomerUsername string          `json:"customer_username"`
	CustomerName     string          `json:"customer_name,omitempty"`
	CustomerAddress  string          `json:"customer_address,omitempty"`
	CustomerEmail    string          `json:"customer_email,omitempty"`
	CustomerPhone    string          `json:"customer_phone,omitempty"`
	Items            []OrderItem     `json:"items"`
	DeliveryDate     time.Time       `json:"delivery_date"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	Status           OrderStatus     `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// OrderItem is a single line of an order. UnitPrice is the catalog price at the time
// the order was placed and is never refreshed afterwards.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal returns UnitPrice multiplied by Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// PriceScale is the number of decimal places stored for every price.
const PriceScale int32 = 2

// SnapshotPrice fixes a catalog price at storage precision, rounding half away from zero.
// Unit prices are captured through it so a stored order sums to its stored total.
func SnapshotPrice(price decimal.Decimal) decimal.Decimal {
	return price.Round(PriceScale)
}

// CalculateTotal sums the line totals of all items. It does not round: with snapshotted
// unit prices the sum is already at storage precision.
func (o Order) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// IsTerminal indicates whether the order is in a terminal state.
func (o Order) IsTerminal() bool {
	switch o.Status {
	case StatusConfirmed, StatusFailed:
		return true
	default:
		return false
	}
}

// CustomerProfile is the contact information forwarded to the identity service.
type CustomerProfile struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

const (
	unknownValue = "Unknown"
	unknownEmail = "unknown@example.com"
)

// CustomerProfile returns the order's customer details with placeholders for missing fields.
func (o Order) CustomerProfile() CustomerProfile {
	return CustomerProfile{
		Name:    valueOr(o.CustomerName, unknownValue),
		Address: valueOr(o.CustomerAddress, unknownValue),
		Email:   valueOr(o.CustomerEmail, unknownEmail),
		Phone:   valueOr(o.CustomerPhone, unknownValue),
	}
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
