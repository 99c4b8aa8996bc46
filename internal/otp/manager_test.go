package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-me/e-shop/internal/apperror"
)

type fakeNotifier struct {
	calls     int
	recipient string
	subject   string
	template  string
	vars      map[string]string
	fail      bool
}

func (f *fakeNotifier) Send(_ context.Context, recipient, subject, template string, vars map[string]string) error {
	if f.fail {
		return errors.New("smtp relay unavailable")
	}
	f.calls++
	f.recipient = recipient
	f.subject = subject
	f.template = template
	f.vars = vars
	return nil
}

func TestIssueStoresCodeAndCooldown(t *testing.T) {
	mr, store := newTestStore(t)
	notifier := &fakeNotifier{}
	manager := NewManager(store, notifier)
	ctx := context.Background()

	err := manager.Issue(ctx, "Pratik", "buyer@example.com", "user-activation-mail")
	require.NoError(t, err)

	require.Equal(t, 1, notifier.calls)
	assert.Equal(t, "buyer@example.com", notifier.recipient)
	assert.Equal(t, "Verify your email", notifier.subject)
	assert.Equal(t, "user-activation-mail", notifier.template)
	assert.Equal(t, "Pratik", notifier.vars["name"])

	code := notifier.vars["otp"]
	n, err := strconv.Atoi(code)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1000)
	assert.LessOrEqual(t, n, 9998)

	stored, err := store.Get(ctx, codeKey("buyer@example.com"))
	require.NoError(t, err)
	assert.Equal(t, code, stored)

	assert.True(t, mr.Exists(cooldownKey("buyer@example.com")))
	assert.Equal(t, codeTTL, mr.TTL(codeKey("buyer@example.com")))
	assert.Equal(t, cooldownTTL, mr.TTL(cooldownKey("buyer@example.com")))
}

func TestIssueDeliveryFailureStoresNothing(t *testing.T) {
	mr, store := newTestStore(t)
	manager := NewManager(store, &fakeNotifier{fail: true})

	err := manager.Issue(context.Background(), "Pratik", "buyer@example.com", "user-activation-mail")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindDatabase))
	assert.False(t, mr.Exists(codeKey("buyer@example.com")))
	assert.False(t, mr.Exists(cooldownKey("buyer@example.com")))
}

func TestIssueOverwritesPriorCode(t *testing.T) {
	_, store := newTestStore(t)
	notifier := &fakeNotifier{}
	manager := NewManager(store, notifier)
	ctx := context.Background()

	require.NoError(t, manager.Issue(ctx, "Pratik", "buyer@example.com", "user-activation-mail"))
	first := notifier.vars["otp"]

	// Re-issuing replaces the stored code; only the latest one verifies.
	var second string
	for {
		require.NoError(t, manager.Issue(ctx, "Pratik", "buyer@example.com", "user-activation-mail"))
		second = notifier.vars["otp"]
		if second != first {
			break
		}
	}

	stored, err := store.Get(ctx, codeKey("buyer@example.com"))
	require.NoError(t, err)
	assert.Equal(t, second, stored)

	err = manager.Verify(ctx, "buyer@example.com", first)
	require.Error(t, err)
	require.NoError(t, manager.Verify(ctx, "buyer@example.com", second))
}

func TestVerifyMissingCode(t *testing.T) {
	_, store := newTestStore(t)
	manager := NewManager(store, &fakeNotifier{})

	err := manager.Verify(context.Background(), "nobody@example.com", "1234")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	assert.Equal(t, "Invalid or expired OTP.", apperror.Message(err))
}

func TestVerifyExpiredCode(t *testing.T) {
	mr, store := newTestStore(t)
	notifier := &fakeNotifier{}
	manager := NewManager(store, notifier)
	ctx := context.Background()

	require.NoError(t, manager.Issue(ctx, "Pratik", "buyer@example.com", "user-activation-mail"))
	mr.FastForward(codeTTL + time.Second)

	err := manager.Verify(ctx, "buyer@example.com", notifier.vars["otp"])
	assert.Equal(t, "Invalid or expired OTP.", apperror.Message(err))
}

func TestVerifyWrongCodeLockout(t *testing.T) {
	mr, store := newTestStore(t)
	notifier := &fakeNotifier{}
	manager := NewManager(store, notifier)
	ctx := context.Background()
	email := "buyer@example.com"

	require.NoError(t, manager.Issue(ctx, "Pratik", email, "user-activation-mail"))
	code := notifier.vars["otp"]

	// "0000" is outside the issued range, so it is always wrong.
	for i := 0; i < maxAttempts; i++ {
		err := manager.Verify(ctx, email, "0000")
		require.Error(t, err)
		assert.True(t, apperror.IsKind(err, apperror.KindValidation))
		assert.Equal(t, fmt.Sprintf("Invalid OTP. %d attempts left.", maxAttempts-i), apperror.Message(err))
	}

	// The next wrong submission locks the email and destroys the code.
	err := manager.Verify(ctx, email, "0000")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindRateLimit))
	assert.Equal(t, "Account locked due to multiple failed attempts. Please try again after 30 minutes.", apperror.Message(err))
	assert.True(t, mr.Exists(lockKey(email)))
	assert.False(t, mr.Exists(codeKey(email)))
	assert.Equal(t, accountLockTTL, mr.TTL(lockKey(email)))

	// Even the correct code no longer verifies.
	err = manager.Verify(ctx, email, code)
	assert.Equal(t, "Invalid or expired OTP.", apperror.Message(err))
}

func TestVerifyConsumesCodeExactlyOnce(t *testing.T) {
	mr, store := newTestStore(t)
	notifier := &fakeNotifier{}
	manager := NewManager(store, notifier)
	ctx := context.Background()
	email := "buyer@example.com"

	require.NoError(t, manager.Issue(ctx, "Pratik", email, "user-activation-mail"))

	// A wrong attempt first, so the attempt counter exists.
	_ = manager.Verify(ctx, email, "0000")
	assert.True(t, mr.Exists(attemptKey(email)))

	code := notifier.vars["otp"]
	require.NoError(t, manager.Verify(ctx, email, code))

	// Code, cooldown, and attempt counter are gone; a repeat fails.
	assert.False(t, mr.Exists(codeKey(email)))
	assert.False(t, mr.Exists(cooldownKey(email)))
	assert.False(t, mr.Exists(attemptKey(email)))

	err := manager.Verify(ctx, email, code)
	assert.Equal(t, "Invalid or expired OTP.", apperror.Message(err))
}

func TestGenerateCodeRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 4)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, codeMin)
		assert.Less(t, n, codeMax)
	}
}
