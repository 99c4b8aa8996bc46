package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-me/e-shop/internal/apperror"
)

func TestHashAndCompare(t *testing.T) {
	m := NewManager()

	hash, err := m.Hash("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", hash)

	assert.True(t, m.Compare("s3cret-password", hash))
	assert.False(t, m.Compare("wrong-password", hash))
}

func TestHashIsSalted(t *testing.T) {
	m := NewManager()

	first, err := m.Hash("s3cret-password")
	require.NoError(t, err)
	second, err := m.Hash("s3cret-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, m.Compare("s3cret-password", first))
	assert.True(t, m.Compare("s3cret-password", second))
}

func TestRejectIfUnchanged(t *testing.T) {
	m := NewManager()

	hash, err := m.Hash("old-password")
	require.NoError(t, err)

	err = m.RejectIfUnchanged(hash, "old-password")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	assert.Equal(t, "New password cannot be same as old password.", apperror.Message(err))

	require.NoError(t, m.RejectIfUnchanged(hash, "brand-new-password"))
}
