package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClaimTTL bounds how long a crashed request can hold a key.
const ClaimTTL = 5 * time.Minute

// Store keeps idempotency claims and responses in the idempotency_keys table. A saved
// response older than the TTL, or a claim older than ClaimTTL, is treated as unseen and
// may be claimed again.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewStore builds a store. A zero ttl keeps saved responses forever.
func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{pool: pool, ttl: ttl, now: time.Now}
}

// cutoff is the oldest created_at of a saved response still considered live.
func (s *Store) cutoff() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.ttl)
}

func (s *Store) claimCutoff() time.Time {
	claimTTL := ClaimTTL
	if s.ttl > 0 {
		claimTTL = min(claimTTL, s.ttl)
	}
	return s.now().Add(-claimTTL)
}

func (s *Store) Claim(ctx context.Context, key string) (*ports.StoredResponse, bool, error) {
	const claimQuery = `
		INSERT INTO idempotency_keys (key, pending, created_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (key) DO UPDATE
		SET pending     = TRUE,
		    status_code = 0,
		    body        = ''::bytea,
		    order_id    = 0,
		    created_at  = EXCLUDED.created_at
		WHERE (idempotency_keys.pending AND idempotency_keys.created_at <= $3)
		   OR (NOT idempotency_keys.pending AND idempotency_keys.created_at <= $4)
		RETURNING key
	`

	var claimedKey string
	err := s.pool.QueryRow(ctx, claimQuery, key, s.now(), s.claimCutoff(), s.cutoff()).Scan(&claimedKey)
	if err == nil {
		return nil, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("claim idempotency key %q: %w", key, err)
	}

	const selectQuery = `
		SELECT pending, status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1
	`

	var pending bool
	var resp ports.StoredResponse
	err = s.pool.QueryRow(ctx, selectQuery, key).Scan(&pending, &resp.StatusCode, &resp.Body, &resp.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select idempotency key %q: %w", key, err)
	}
	if pending {
		return nil, false, nil
	}
	return &resp, false, nil
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	const query = `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1 AND NOT pending AND created_at > $2
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key, s.cutoff()).Scan(&resp.StatusCode, &resp.Body, &resp.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key %q: %w", key, err)
	}

	return &resp, nil
}

// Save completes a claim. The first live saved response for a key is kept; an expired one
// is replaced.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	const query = `
		INSERT INTO idempotency_keys (key, status_code, body, order_id, pending, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
		    body        = EXCLUDED.body,
		    order_id    = EXCLUDED.order_id,
		    pending     = FALSE,
		    created_at  = EXCLUDED.created_at
		WHERE idempotency_keys.pending OR idempotency_keys.created_at <= $6
	`

	_, err := s.pool.Exec(ctx, query,
		key, response.StatusCode, response.Body, response.OrderID, s.now(), s.cutoff())
	if err != nil {
		return fmt.Errorf("insert idempotency key %q: %w", key, err)
	}

	return nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND pending`, key); err != nil {
		return fmt.Errorf("release idempotency key %q: %w", key, err)
	}
	return nil
}

// Purge deletes expired responses and abandoned claims and reports how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	const query = `
		DELETE FROM idempotency_keys
		WHERE (pending AND created_at <= $1)
		   OR (NOT pending AND created_at <= $2)
	`

	tag, err := s.pool.Exec(ctx, query, s.claimCutoff(), s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
