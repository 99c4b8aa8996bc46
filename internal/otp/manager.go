package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/apperror"
	"github.com/pratik-me/e-shop/internal/repository"
	"github.com/pratik-me/e-shop/internal/util"
)

// Notifier delivers the OTP email. Delivery is awaited; a failure is fatal
// to the issuing call and is never retried by this package.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, template string, vars map[string]string) error
}

// Codes are drawn from [1000, 9999) — the upper bound is exclusive, so 9999
// itself is never issued. The range is kept as-is for parity with the
// deployed storefront clients.
const (
	codeMin = 1000
	codeMax = 9999
)

const verifySubject = "Verify your email"

// Manager generates, delivers, verifies, and invalidates one-time codes.
// At most one live code exists per email; issuing overwrites the prior one.
type Manager struct {
	store    KeyedStore
	notifier Notifier
}

func NewManager(store KeyedStore, notifier Notifier) *Manager {
	return &Manager{store: store, notifier: notifier}
}

// Issue generates a fresh 4-digit code, delivers it through the notifier,
// and stores it with a 5-minute TTL alongside the 1-minute cooldown flag.
// Eligibility must have been checked by the caller beforehand.
func (m *Manager) Issue(ctx context.Context, name, email, template string) error {
	code, err := generateCode()
	if err != nil {
		return apperror.Database("Failed to generate OTP.", err)
	}

	vars := map[string]string{"name": name, "otp": code}
	if err := m.notifier.Send(ctx, email, verifySubject, template, vars); err != nil {
		return apperror.Database("Failed to send OTP email.", err)
	}

	if err := m.store.Set(ctx, codeKey(email), code, codeTTL); err != nil {
		return apperror.Database("Failed to store OTP.", err)
	}
	if err := m.store.Set(ctx, cooldownKey(email), "true", cooldownTTL); err != nil {
		return apperror.Database("Failed to set OTP cooldown.", err)
	}

	util.Debug("OTP issued",
		zap.String("email", email),
		zap.String("template", template))
	return nil
}

// Verify compares the submitted code against the stored one. A match
// consumes the code exactly once: the code, cooldown, and failed-attempt
// counter are all cleared, so an immediate repeat verify reports the code
// as expired. Wrong submissions increment a 5-minute counter; once it has
// reached 10 the next wrong submission locks the email for 30 minutes and
// destroys the stored code.
func (m *Manager) Verify(ctx context.Context, email, submitted string) error {
	stored, err := m.store.Get(ctx, codeKey(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Validation("Invalid or expired OTP.")
		}
		return apperror.Database("Failed to look up OTP.", err)
	}

	attempts, err := m.failedAttempts(ctx, email)
	if err != nil {
		return err
	}

	if stored != submitted {
		if attempts >= maxAttempts {
			if err := m.store.Set(ctx, lockKey(email), "locked", accountLockTTL); err != nil {
				return apperror.Database("Failed to lock account.", err)
			}
			if err := m.store.Delete(ctx, codeKey(email)); err != nil {
				return apperror.Database("Failed to invalidate OTP.", err)
			}
			util.Warn("Account locked after repeated OTP failures",
				zap.String("email", email),
				zap.Int("failed_attempts", attempts))
			return apperror.RateLimit("Account locked due to multiple failed attempts. Please try again after 30 minutes.")
		}

		if err := m.store.Set(ctx, attemptKey(email), strconv.Itoa(attempts+1), attemptWindow); err != nil {
			return apperror.Database("Failed to track OTP attempt.", err)
		}
		// remaining count is computed from the pre-increment value for
		// messaging parity with the storefront
		return apperror.Validation(fmt.Sprintf("Invalid OTP. %d attempts left.", maxAttempts-attempts))
	}

	if err := m.store.Delete(ctx, codeKey(email), cooldownKey(email), attemptKey(email)); err != nil {
		return apperror.Database("Failed to clear OTP state.", err)
	}

	util.Debug("OTP verified", zap.String("email", email))
	return nil
}

func (m *Manager) failedAttempts(ctx context.Context, email string) (int, error) {
	raw, err := m.store.Get(ctx, attemptKey(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, nil
		}
		return 0, apperror.Database("Failed to read OTP attempts.", err)
	}
	attempts, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Database("Invalid OTP attempt counter.", err)
	}
	return attempts, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin))
	if err != nil {
		return "", fmt.Errorf("failed to draw random code: %w", err)
	}
	return strconv.FormatInt(codeMin+n.Int64(), 10), nil
}
