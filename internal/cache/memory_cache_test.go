package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheJSON(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	type stats struct{ Open int }
	require.NoError(t, c.SetJSON(ctx, KeyAdminStats, stats{Open: 3}, time.Minute))

	var got stats
	hit, err := c.GetJSON(ctx, KeyAdminStats, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, got.Open)

	require.NoError(t, c.Del(ctx, KeyAdminStats))
	hit, _ = c.GetJSON(ctx, KeyAdminStats, &got)
	assert.False(t, hit)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	base := time.Now()
	c.now = func() time.Time { return base }

	require.NoError(t, c.Revoke(ctx, "jti-1", time.Minute))
	revoked, _ := c.IsRevoked(ctx, "jti-1")
	assert.True(t, revoked)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	revoked, _ = c.IsRevoked(ctx, "jti-1")
	assert.False(t, revoked)
}

func TestMemoryCacheCorruptIsMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	c.set("k", []byte("{not json"), 0)

	var v map[string]any
	hit, err := c.GetJSON(ctx, "k", &v)
	assert.NoError(t, err)
	assert.False(t, hit)
}
