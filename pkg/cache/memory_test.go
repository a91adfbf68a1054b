package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(16, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestMemoryCache_MissIsErrMiss(t *testing.T) {
	c := NewMemoryCache(16, time.Hour)

	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_PerEntryTTL(t *testing.T) {
	c := NewMemoryCache(16, time.Hour)
	ctx := context.Background()

	current := time.Now()
	c.now = func() time.Time { return current }

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))

	_, err := c.Get(ctx, "k1")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(16, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k1"))

	_, err := c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	c := NewMemoryCache(16, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "core:uctx:u1:c1", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "core:uctx:u2:c1", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "core:uctx:u1:c2", []byte("c"), time.Minute))

	require.NoError(t, c.DeleteByPattern(ctx, "core:uctx:*:c1"))

	_, err := c.Get(ctx, "core:uctx:u1:c1")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = c.Get(ctx, "core:uctx:u2:c1")
	assert.ErrorIs(t, err, ErrMiss)

	got, err := c.Get(ctx, "core:uctx:u1:c2")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), got)
}

func TestMemoryCache_EvictsAtCapacity(t *testing.T) {
	c := NewMemoryCache(2, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "k2", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "k3", []byte("3"), time.Minute))

	_, err := c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)

	got, err := c.Get(ctx, "k3")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)
}
