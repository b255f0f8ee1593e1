package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

type entry struct {
	pending  bool
	response ports.StoredResponse
}

// Store retains idempotency claims and responses in process memory.
type Store struct {
	mu    sync.Mutex
	items map[string]entry
}

// NewStore creates a new in-memory idempotency store.
func NewStore() *Store {
	return &Store{items: make(map[string]entry)}
}

// Claim reserves key unless it is already claimed or saved.
func (s *Store) Claim(_ context.Context, key string) (*ports.StoredResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	switch {
	case !ok:
		s.items[key] = entry{pending: true}
		return nil, true, nil
	case e.pending:
		return nil, false, nil
	default:
		return copyResponse(e.response), false, nil
	}
}

// Get returns the saved response for a key if present.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok || e.pending {
		return nil, nil
	}
	return copyResponse(e.response), nil
}

// Save records the response for a key unless one is already saved.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[key]; ok && !e.pending {
		return nil
	}
	s.items[key] = entry{response: *copyResponse(response)}
	return nil
}

// Release forgets a pending claim.
func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[key]; ok && e.pending {
		delete(s.items, key)
	}
	return nil
}

func copyResponse(r ports.StoredResponse) *ports.StoredResponse {
	r.Body = append([]byte(nil), r.Body...)
	return &r
}
