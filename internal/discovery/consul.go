package discovery

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/consul/api"
)

type healthAPI interface {
	Service(service, tag string, passingOnly bool, q *api.QueryOptions) ([]*api.ServiceEntry, *api.QueryMeta, error)
}

// Consul resolves names to passing instances registered in Consul, rotating between them.
// Lookups happen on every call so instance changes are picked up without a restart.
type Consul struct {
	health healthAPI
	next   atomic.Uint64
}

// NewConsul connects to the agent at addr and verifies it answers.
func NewConsul(addr string) (*Consul, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("connect to consul at %s: %w", addr, err)
	}

	return &Consul{health: client.Health()}, nil
}

func (c *Consul) Resolve(ctx context.Context, service string) (string, error) {
	entries, _, err := c.health.Service(service, "", true, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("query consul for %s: %w", service, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no healthy instances of %s", ErrUnknownService, service)
	}

	entry := entries[c.next.Add(1)%uint64(len(entries))]
	address := entry.Service.Address
	if address == "" && entry.Node != nil {
		address = entry.Node.Address
	}
	if address == "" {
		address = "localhost"
	}

	return fmt.Sprintf("http://%s:%d", address, entry.Service.Port), nil
}
