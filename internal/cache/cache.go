// Package cache memoises image selections so identical requests against the
// same catalog skip the remote listing calls.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.ngs.io/satellite-image-api/internal/domain"
)

// KeyPrefix namespaces selection keys in shared stores.
const KeyPrefix = "satimg:selection:"

// SelectionCache stores the candidate chosen for a region and catalog snapshot.
type SelectionCache interface {
	Get(ctx context.Context, key string) (*domain.Candidate, bool, error)
	Set(ctx context.Context, key string, c *domain.Candidate) error
}

// Key derives the cache key for a region under a catalog snapshot.
func Key(region *domain.Region, catalogFingerprint string) string {
	sum := sha256.Sum256([]byte(catalogFingerprint + "|" + region.Key()))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Noop never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) (*domain.Candidate, bool, error) { return nil, false, nil }

// Set discards the value.
func (Noop) Set(context.Context, string, *domain.Candidate) error { return nil }

// Redis stores selections as JSON strings with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps a client. A non-positive ttl stores keys without expiry.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{client: client, ttl: ttl}
}

// Get returns the cached candidate, if any.
func (r *Redis) Get(ctx context.Context, key string) (*domain.Candidate, bool, error) {
	s, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var c domain.Candidate
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, false, fmt.Errorf("decode cached selection: %w", err)
	}
	return &c, true, nil
}

// Set stores a candidate.
func (r *Redis) Set(ctx context.Context, key string, c *domain.Candidate) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	if err := r.client.Set(ctx, key, string(b), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
