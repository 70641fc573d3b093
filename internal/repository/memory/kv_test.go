package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/auth-demo/internal/apperror"
)

func TestKV(t *testing.T) {
	kv := New()
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	value := []byte("v1")
	require.NoError(t, kv.Set(ctx, "k", value, 0))
	value[0] = 'X' // the store must hold its own copy

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	require.NoError(t, kv.Delete(ctx, "k"))
	assert.Equal(t, 0, kv.Len())
}

func TestKV_Expiry(t *testing.T) {
	kv := New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Set(context.Background(), "k", []byte("v"), time.Minute))

	now = now.Add(59 * time.Second)
	_, err := kv.Get(context.Background(), "k")
	assert.NoError(t, err)

	now = now.Add(time.Second)
	_, err = kv.Get(context.Background(), "k")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
