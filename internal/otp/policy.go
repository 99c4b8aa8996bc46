package otp

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/apperror"
	"github.com/pratik-me/e-shop/internal/repository"
	"github.com/pratik-me/e-shop/internal/util"
)

// RatePolicy decides whether an OTP send may proceed for an email, based on
// three independent TTL'd flags (account lock, spam lock, cooldown) and a
// rolling one-hour request counter. The flags are separate keys rather than
// one state machine because each has a different expiry and trigger.
type RatePolicy struct {
	store KeyedStore
}

func NewRatePolicy(store KeyedStore) *RatePolicy {
	return &RatePolicy{store: store}
}

// CheckSendEligibility rejects a send while any restriction flag is live.
// The check order is fixed: account lock, then spam lock, then cooldown.
// Each failure short-circuits without mutating state.
func (p *RatePolicy) CheckSendEligibility(ctx context.Context, email string) error {
	locked, err := p.exists(ctx, lockKey(email))
	if err != nil {
		return err
	}
	if locked {
		return apperror.RateLimit("Account locked due to multiple failed attempts. Please try again after 30 minutes.")
	}

	spamLocked, err := p.exists(ctx, spamLockKey(email))
	if err != nil {
		return err
	}
	if spamLocked {
		return apperror.RateLimit("Too many OTP requests! Please wait for an hour before requesting again.")
	}

	coolingDown, err := p.exists(ctx, cooldownKey(email))
	if err != nil {
		return err
	}
	if coolingDown {
		return apperror.RateLimit("Please wait for 1 minute before requesting a new OTP")
	}

	return nil
}

// RecordSendAttempt counts the send against the rolling one-hour window.
// Once the cap is reached it sets the spam lock and rejects; the counter is
// not pushed past the cap. The read-then-write here is not atomic, so two
// racing sends can both observe a sub-cap count (see the package tests).
func (p *RatePolicy) RecordSendAttempt(ctx context.Context, email string) error {
	count, err := p.counter(ctx, requestKey(email))
	if err != nil {
		return err
	}

	if count >= maxRequests {
		if err := p.store.Set(ctx, spamLockKey(email), "locked", spamLockTTL); err != nil {
			return apperror.Database("Failed to apply OTP spam lock.", err)
		}
		util.Warn("OTP spam lock applied",
			zap.String("email", email),
			zap.Int("request_count", count))
		return apperror.RateLimit("Too many OTP requests. Please wait 1 hour before requesting again.")
	}

	if err := p.store.Set(ctx, requestKey(email), strconv.Itoa(count+1), requestWindow); err != nil {
		return apperror.Database("Failed to track OTP request.", err)
	}
	return nil
}

func (p *RatePolicy) exists(ctx context.Context, key string) (bool, error) {
	_, err := p.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, apperror.Database("Failed to check OTP restrictions.", err)
	}
	return true, nil
}

func (p *RatePolicy) counter(ctx context.Context, key string) (int, error) {
	raw, err := p.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, nil
		}
		return 0, apperror.Database("Failed to read OTP counter.", err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Database("Invalid OTP counter value.", err)
	}
	return count, nil
}
