// Package httpclient is the shared JSON-over-HTTP transport for collaborator clients.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dejobratic/orderflow/internal/discovery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultMaxRetries = 2

	maxErrorBody = 512
)

// Config tunes every call made through a Client.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	// InitialBackoff is the first retry delay; it grows exponentially.
	InitialBackoff time.Duration
}

// Client calls one collaborator. The base URL is resolved on every call.
type Client struct {
	service  string
	resolver discovery.Resolver
	http     *http.Client
	cfg      Config
	metrics  *Metrics
}

func New(service string, resolver discovery.Resolver, cfg Config, metrics *Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}

	return &Client{
		service:  service,
		resolver: resolver,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cfg:     cfg,
		metrics: metrics,
	}
}

// Request describes one logical call. Idempotent requests are retried on transport
// errors and 5xx responses.
type Request struct {
	Operation  string
	Method     string
	Path       string
	Query      url.Values
	Body       any
	Idempotent bool
}

// Do performs req and decodes a 2xx JSON body into out when out is non-nil.
// Any other outcome is returned as a *RemoteError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return c.fail(req, 0, fmt.Errorf("encode request: %w", err))
		}
	}

	var body []byte
	attempt := func() error {
		var err error
		body, err = c.attempt(ctx, req, payload)
		return err
	}

	var err error
	if req.Idempotent && c.cfg.MaxRetries > 0 {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = c.cfg.InitialBackoff
		err = backoff.Retry(attempt, backoff.WithContext(
			backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx))
	} else {
		err = attempt()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
	}
	if err != nil {
		var remote *RemoteError
		if !errors.As(err, &remote) {
			err = c.fail(req, 0, err)
		}
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(req, http.StatusOK, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, req Request, payload []byte) ([]byte, error) {
	base, err := c.resolver.Resolve(ctx, c.service)
	if err != nil {
		return nil, backoff.Permanent(c.fail(req, 0, err))
	}

	target := base + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, backoff.Permanent(c.fail(req, 0, fmt.Errorf("build request: %w", err)))
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.record(ctx, req, 0, start)
		unanswered := c.unanswered(req, 0, err)
		if ctx.Err() != nil {
			return nil, backoff.Permanent(unanswered)
		}
		return nil, unanswered
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.record(ctx, req, resp.StatusCode, start)
	if err != nil {
		return nil, c.unanswered(req, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	statusErr := c.fail(req, resp.StatusCode, errors.New(snippet(body, resp.Status)))
	if resp.StatusCode >= 500 {
		return nil, statusErr
	}
	return nil, backoff.Permanent(statusErr)
}

func (c *Client) record(ctx context.Context, req Request, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordCall(ctx, c.service, req.Operation, status, time.Since(start).Seconds())
	}
}

func (c *Client) fail(req Request, status int, err error) error {
	return &RemoteError{Service: c.service, Operation: req.Operation, StatusCode: status, Err: err}
}

// unanswered reports a call that left the client without a complete response, so the
// collaborator may or may not have applied it.
func (c *Client) unanswered(req Request, status int, err error) error {
	return &RemoteError{Service: c.service, Operation: req.Operation, StatusCode: status, Unanswered: true, Err: err}
}

func snippet(body []byte, status string) string {
	text := string(bytes.TrimSpace(body))
	if text == "" {
		return status
	}
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}
