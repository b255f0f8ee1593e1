package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "idempotency:"
	DefaultTTL = 24 * time.Hour
	// ClaimTTL bounds how long a crashed request can hold a key.
	ClaimTTL = 5 * time.Minute

	pendingMarker = "pending"
)

// saveScript writes the response over a pending claim or a missing key, never over a
// saved response.
var saveScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false or current == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Store keeps idempotency claims and responses in Redis with an expiry.
type Store struct {
	client   *redis.Client
	ttl      time.Duration
	claimTTL time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl, claimTTL: min(ClaimTTL, ttl)}
}

func (s *Store) Claim(ctx context.Context, key string) (*ports.StoredResponse, bool, error) {
	claimed, err := s.client.SetNX(ctx, keyPrefix+key, pendingMarker, s.claimTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if claimed {
		return nil, true, nil
	}

	stored, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	if string(raw) == pendingMarker {
		return nil, nil
	}

	var resp ports.StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode idempotency key: %w", err)
	}
	return &resp, nil
}

// Save keeps the first response recorded for a key.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode idempotency key: %w", err)
	}

	err = saveScript.Run(ctx, s.client, []string{keyPrefix + key},
		pendingMarker, payload, s.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.client, []string{keyPrefix + key}, pendingMarker).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
