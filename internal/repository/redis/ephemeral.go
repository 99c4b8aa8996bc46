// Package redis implements the ephemeral keyed store backing the OTP and
// rate-limit state. Every key carries its own TTL; Redis is the sole owner
// and garbage collector of expired entries.
package redis

import (
	"context"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/repository"
	"github.com/pratik-me/e-shop/internal/util"
)

// EphemeralStore exposes time-bounded key-value storage. It deliberately
// offers no atomic check-and-set across keys; callers sequence their own
// reads and writes (see the counter race notes in the otp package).
type EphemeralStore struct {
	client *red.Client
}

func NewEphemeralStore(client *red.Client) *EphemeralStore {
	return &EphemeralStore{client: client}
}

// Get returns the value stored at key, or repository.ErrNotFound when the
// key is absent or expired.
func (s *EphemeralStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == red.Nil {
			return "", repository.ErrNotFound
		}
		util.Error("Failed to get ephemeral key",
			zap.String("key", key),
			zap.Error(err))
		return "", fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return val, nil
}

// Set stores value at key, overwriting any prior value and resetting the TTL.
func (s *EphemeralStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		util.Error("Failed to set ephemeral key",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are not an error.
func (s *EphemeralStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		util.Error("Failed to delete ephemeral keys",
			zap.Int("key_count", len(keys)),
			zap.Error(err))
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}
