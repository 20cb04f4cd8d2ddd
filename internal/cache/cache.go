// Package cache provides the key/value cache used for leaderboards.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache errors.
var (
	ErrKeyEmpty   = errors.New("cache: key cannot be empty")
	ErrInvalidTTL = errors.New("cache: ttl must be positive")
)

// Cache stores JSON-serializable values with a TTL.
type Cache interface {
	// Get decodes the value stored under key into dest. It reports false on a miss.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
