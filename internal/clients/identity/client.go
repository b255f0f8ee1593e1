// Package identity is the HTTP client for the user account service.
package identity

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dejobratic/orderflow/internal/clients/httpclient"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
)

const ServiceName = "identity"

type Client struct {
	http *httpclient.Client
}

func New(client *httpclient.Client) *Client {
	return &Client{http: client}
}

func userPath(username string) string {
	return "/api/users/" + url.PathEscape(username)
}

func (c *Client) VerifyPermission(ctx context.Context, username string) (bool, error) {
	var allowed bool
	err := c.http.Do(ctx, httpclient.Request{
		Operation:  "verify_permission",
		Method:     http.MethodGet,
		Path:       userPath(username) + "/permission",
		Idempotent: true,
	}, &allowed)
	return allowed, err
}

func (c *Client) UpsertCustomerProfile(ctx context.Context, username string, profile domain.CustomerProfile) error {
	return c.http.Do(ctx, httpclient.Request{
		Operation: "upsert_profile",
		Method:    http.MethodPost,
		Path:      userPath(username) + "/info",
		Body:      profile,
	}, nil)
}

type userResponse struct {
	Email string `json:"email"`
}

// GetUserEmail reports ok=false when the user is unknown or has no email.
func (c *Client) GetUserEmail(ctx context.Context, username string) (string, bool, error) {
	var user userResponse
	err := c.http.Do(ctx, httpclient.Request{
		Operation:  "get_user",
		Method:     http.MethodGet,
		Path:       userPath(username),
		Idempotent: true,
	}, &user)
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return user.Email, user.Email != "", nil
}

var _ ports.IdentityClient = (*Client)(nil)
