package domain_test

import (
	"testing"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/shopspring/decimal"
)

func TestOrderCalculateTotal(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.OrderItem
		want  string
	}{
		{
			name: "two items",
			items: []domain.OrderItem{
				{ProductID: "product-a", Quantity: 3, UnitPrice: decimal.RequireFromString("10.50")},
				{ProductID: "product-b", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
			},
			want: "36.50",
		},
		{
			name: "avoids float drift",
			items: []domain.OrderItem{
				{ProductID: "product-a", Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
				{ProductID: "product-b", Quantity: 1, UnitPrice: decimal.RequireFromString("0.20")},
			},
			want: "0.50",
		},
		{
			name:  "no items",
			items: nil,
			want:  "0.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := domain.Order{Items: tt.items}
			if got := order.CalculateTotal().StringFixed(2); got != tt.want {
				t.Errorf("Order.CalculateTotal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSnapshotPrice(t *testing.T) {
	tests := map[string]string{
		"10.50":  "10.50",
		"0.125":  "0.13",
		"0.124":  "0.12",
		"19.999": "20.00",
		"7":      "7.00",
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got := domain.SnapshotPrice(decimal.RequireFromString(in))
			if !got.Equal(decimal.RequireFromString(want)) {
				t.Errorf("SnapshotPrice(%s) = %s, want %s", in, got, want)
			}
		})
	}
}

func TestOrderCalculateTotalIsExactSumOfSnapshots(t *testing.T) {
	order := domain.Order{Items: []domain.OrderItem{
		{ProductID: "product-a", Quantity: 3, UnitPrice: domain.SnapshotPrice(decimal.RequireFromString("0.125"))},
		{ProductID: "product-b", Quantity: 7, UnitPrice: domain.SnapshotPrice(decimal.RequireFromString("1.005"))},
	}}

	var sum decimal.Decimal
	for _, item := range order.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	total := order.CalculateTotal()
	if !total.Equal(sum) {
		t.Errorf("CalculateTotal() = %s, want %s", total, sum)
	}
	if !total.Equal(domain.SnapshotPrice(total)) {
		t.Errorf("expected total %s to need no further rounding", total)
	}
}

func TestOrderIsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status domain.OrderStatus
		want   bool
	}{
		{"confirmed is terminal", domain.StatusConfirmed, true},
		{"failed is terminal", domain.StatusFailed, true},
		{"processing is not terminal", domain.StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := domain.Order{Status: tt.status}
			if got := order.IsTerminal(); got != tt.want {
				t.Errorf("Order.IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderCustomerProfile(t *testing.T) {
	t.Run("fills missing fields with placeholders", func(t *testing.T) {
		order := domain.Order{CustomerUsername: "alice", CustomerName: "Alice"}

		profile := order.CustomerProfile()

		want := domain.CustomerProfile{
			Name:    "Alice",
			Address: "Unknown",
			Email:   "unknown@example.com",
			Phone:   "Unknown",
		}
		if profile != want {
			t.Errorf("CustomerProfile() = %+v, want %+v", profile, want)
		}
	})

	t.Run("keeps provided fields", func(t *testing.T) {
		order := domain.Order{
			CustomerName:    "Alice",
			CustomerAddress: "1 Main St",
			CustomerEmail:   "alice@example.com",
			CustomerPhone:   "555-0100",
		}

		profile := order.CustomerProfile()

		if profile.Email != "alice@example.com" || profile.Address != "1 Main St" || profile.Phone != "555-0100" {
			t.Errorf("unexpected profile %+v", profile)
		}
	})
}
