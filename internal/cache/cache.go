// Package cache provides the TTL caches used for alignment, expression and chart results.
// Values are msgpack-encoded so both backends return independent copies and preserve NaN.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Store is a namespaced key-value cache with per-entry expiration
type Store interface {
	// Get decodes the entry for key into dest. Returns false when absent or expired.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
}

func encode(value interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache value: %w", err)
	}
	return data, nil
}

func decode(data []byte, dest interface{}) error {
	if err := msgpack.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode cache value: %w", err)
	}
	return nil
}
