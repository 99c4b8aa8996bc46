// Package otp implements the one-time-password lifecycle and the rate and
// lockout policy guarding it. All state lives in an ephemeral keyed store
// under five independent per-email keys, each expiring on its own TTL.
package otp

import (
	"context"
	"time"
)

// KeyedStore is the ephemeral storage contract the OTP flows run against.
// Implementations must be safe for concurrent use; key-level isolation is
// sufficient, no cross-key transactions are required.
type KeyedStore interface {
	// Get returns the value at key or repository.ErrNotFound when absent.
	Get(ctx context.Context, key string) (string, error)
	// Set overwrites the value at key and resets its TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes the given keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

const (
	codeKeyPrefix     = "otp:"
	cooldownKeyPrefix = "otp_cooldown:"
	requestKeyPrefix  = "otp_request_count:"
	spamLockKeyPrefix = "otp_spam_lock:"
	attemptKeyPrefix  = "otp_attempts:"
	lockKeyPrefix     = "otp_lock:"
)

const (
	codeTTL     = 5 * time.Minute
	cooldownTTL = time.Minute

	requestWindow = time.Hour
	maxRequests   = 7
	spamLockTTL   = time.Hour

	attemptWindow  = 5 * time.Minute
	maxAttempts    = 10
	accountLockTTL = 30 * time.Minute
)

func codeKey(email string) string     { return codeKeyPrefix + email }
func cooldownKey(email string) string { return cooldownKeyPrefix + email }
func requestKey(email string) string  { return requestKeyPrefix + email }
func spamLockKey(email string) string { return spamLockKeyPrefix + email }
func attemptKey(email string) string  { return attemptKeyPrefix + email }
func lockKey(email string) string     { return lockKeyPrefix + email }
