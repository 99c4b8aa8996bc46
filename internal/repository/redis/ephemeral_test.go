package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-me/e-shop/internal/repository"
)

func newStore(t *testing.T) (*miniredis.Miniredis, *EphemeralStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewEphemeralStore(client)
}

func TestGetMissingKey(t *testing.T) {
	_, store := newStore(t)

	_, err := store.Get(context.Background(), "otp:missing@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetGetRoundTrip(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "otp:a@example.com", "4821", 5*time.Minute))

	val, err := store.Get(ctx, "otp:a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "4821", val)
}

func TestSetOverwritesValueAndTTL(t *testing.T) {
	mr, store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "otp:a@example.com", "1111", time.Minute))
	mr.FastForward(50 * time.Second)
	require.NoError(t, store.Set(ctx, "otp:a@example.com", "2222", time.Minute))

	// The rewrite reset the clock: the key survives past the original expiry.
	mr.FastForward(50 * time.Second)
	val, err := store.Get(ctx, "otp:a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "2222", val)
}

func TestKeyExpires(t *testing.T) {
	mr, store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "otp_cooldown:a@example.com", "true", time.Minute))
	mr.FastForward(61 * time.Second)

	_, err := store.Get(ctx, "otp_cooldown:a@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteIgnoresMissingKeys(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "otp:a@example.com", "4821", time.Minute))
	require.NoError(t, store.Delete(ctx, "otp:a@example.com", "otp:never-existed@example.com"))

	_, err := store.Get(ctx, "otp:a@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, store.Delete(ctx))
}
