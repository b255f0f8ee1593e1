package notifier

import (
	"context"
	"net/http"

	"github.com/dejobratic/orderflow/internal/clients/httpclient"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// HTTPNotifier posts confirmations to the notification service.
type HTTPNotifier struct {
	http *httpclient.Client
}

func NewHTTP(client *httpclient.Client) *HTTPNotifier {
	return &HTTPNotifier{http: client}
}

func (n *HTTPNotifier) SendConfirmation(ctx context.Context, confirmation ports.Confirmation) error {
	msg, err := newConfirmationMessage(confirmation)
	if err != nil {
		return err
	}
	return n.http.Do(ctx, httpclient.Request{
		Operation: "send_confirmation",
		Method:    http.MethodPost,
		Path:      "/api/notifications/email",
		Body:      msg,
	}, nil)
}

var _ ports.Notifier = (*HTTPNotifier)(nil)
