// Package catalog is the HTTP client for the product catalog service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dejobratic/orderflow/internal/clients/httpclient"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/shopspring/decimal"
)

const ServiceName = "catalog"

type Client struct {
	http *httpclient.Client
}

func New(client *httpclient.Client) *Client {
	return &Client{http: client}
}

func productPath(productID string) string {
	return "/api/products/" + url.PathEscape(productID)
}

type productResponse struct {
	Price *decimal.Decimal `json:"price"`
}

// GetProductPrice returns the current price. An unknown product is a validation error; a
// product without a usable price is a remote error.
func (c *Client) GetProductPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	var product productResponse
	err := c.http.Do(ctx, httpclient.Request{
		Operation:  "get_price",
		Method:     http.MethodGet,
		Path:       productPath(productID),
		Idempotent: true,
	}, &product)
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			return decimal.Zero, fmt.Errorf("%w: product %s does not exist", domain.ErrValidation, productID)
		}
		return decimal.Zero, err
	}
	switch {
	case product.Price == nil:
		return decimal.Zero, invalidProduct(productID, errors.New("response has no price"))
	case product.Price.IsNegative():
		return decimal.Zero, invalidProduct(productID, fmt.Errorf("negative price %s", product.Price))
	}
	return *product.Price, nil
}

func invalidProduct(productID string, err error) error {
	return &httpclient.RemoteError{
		Service:    ServiceName,
		Operation:  "get_price",
		StatusCode: http.StatusOK,
		Err:        fmt.Errorf("product %s: %w", productID, err),
	}
}

type availabilityResponse struct {
	IsAvailable bool `json:"isAvailable"`
}

func (c *Client) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	var availability availabilityResponse
	err := c.http.Do(ctx, httpclient.Request{
		Operation: "check_availability",
		Method:    http.MethodGet,
		Path:      "/api/products/check",
		Query: url.Values{
			"productId": {productID},
			"quantity":  {strconv.Itoa(quantity)},
		},
		Idempotent: true,
	}, &availability)
	return availability.IsAvailable, err
}

func (c *Client) DecrementInventory(ctx context.Context, productID string, quantity int) error {
	return c.adjust(ctx, "decrement_inventory", productPath(productID)+"/updateQuantity", quantity)
}

func (c *Client) RestoreInventory(ctx context.Context, productID string, quantity int) error {
	return c.adjust(ctx, "restore_inventory", productPath(productID)+"/restoreQuantity", quantity)
}

func (c *Client) adjust(ctx context.Context, operation, path string, quantity int) error {
	return c.http.Do(ctx, httpclient.Request{
		Operation: operation,
		Method:    http.MethodPut,
		Path:      path,
		Query:     url.Values{"quantity": {strconv.Itoa(quantity)}},
	}, nil)
}

var _ ports.CatalogClient = (*Client)(nil)
