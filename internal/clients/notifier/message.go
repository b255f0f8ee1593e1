// Package notifier delivers order confirmations over HTTP or RabbitMQ.
package notifier

import (
	"encoding/json"
	"fmt"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

const ServiceName = "notifier"

// ConfirmationMessage is the payload understood by the notification service.
// Items travel as an embedded JSON document.
type ConfirmationMessage struct {
	Email      string `json:"email"`
	OrderID    int64  `json:"orderId"`
	Status     string `json:"status"`
	Items      string `json:"items"`
	TotalPrice string `json:"totalPrice"`
}

type messageItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

func newConfirmationMessage(c ports.Confirmation) (ConfirmationMessage, error) {
	items := make([]messageItem, len(c.Items))
	for i, item := range c.Items {
		items[i] = messageItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.UnitPrice.StringFixed(2),
		}
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return ConfirmationMessage{}, fmt.Errorf("encode items: %w", err)
	}

	return ConfirmationMessage{
		Email:      c.Email,
		OrderID:    c.OrderID,
		Status:     string(c.Status),
		Items:      string(itemsJSON),
		TotalPrice: c.TotalPrice.StringFixed(2),
	}, nil
}
