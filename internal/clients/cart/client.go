// Package cart is the HTTP client for the shopping cart service.
package cart

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dejobratic/orderflow/internal/clients/httpclient"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

const ServiceName = "cart"

type Client struct {
	http *httpclient.Client
}

func New(client *httpclient.Client) *Client {
	return &Client{http: client}
}

func (c *Client) RemoveCartItem(ctx context.Context, username, productID string) error {
	return c.http.Do(ctx, httpclient.Request{
		Operation: "remove_item",
		Method:    http.MethodDelete,
		Path:      "/api/cart/" + url.PathEscape(username) + "/items/" + url.PathEscape(productID),
	}, nil)
}

var _ ports.CartClient = (*Client)(nil)
