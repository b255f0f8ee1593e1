// Package discovery resolves collaborator names to base URLs.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownService is returned when a service name has no known location.
var ErrUnknownService = errors.New("unknown service")

// Resolver returns the base URL (scheme://host:port) of a healthy instance of service.
type Resolver interface {
	Resolve(ctx context.Context, service string) (string, error)
}

// Static resolves names from a fixed map, typically built from configuration.
type Static map[string]string

func (s Static) Resolve(_ context.Context, service string) (string, error) {
	base, ok := s[service]
	if !ok || base == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return strings.TrimRight(base, "/"), nil
}
