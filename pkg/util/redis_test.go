package util

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestDeduper(t *testing.T) {
	ctx := context.Background()

	t.Run("Should accept the first delivery and reject duplicates", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		d := NewDeduper(rdb, time.Hour, nil)

		assert.True(t, d.AcquireOnce(ctx, "rollover", "evt-1"))
		assert.False(t, d.AcquireOnce(ctx, "rollover", "evt-1"))
		assert.True(t, d.AcquireOnce(ctx, "other", "evt-1"))
	})

	t.Run("Should allow again after release", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		d := NewDeduper(rdb, time.Hour, nil)

		require.True(t, d.AcquireOnce(ctx, "rollover", "evt-2"))
		d.Release(ctx, "rollover", "evt-2")
		assert.True(t, d.AcquireOnce(ctx, "rollover", "evt-2"))
	})

	t.Run("Should expire after ttl", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		d := NewDeduper(rdb, time.Minute, nil)

		require.True(t, d.AcquireOnce(ctx, "rollover", "evt-3"))
		mr.FastForward(2 * time.Minute)
		assert.True(t, d.AcquireOnce(ctx, "rollover", "evt-3"))
	})

	t.Run("Should fail open when redis is down", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		d := NewDeduper(rdb, time.Minute, nil)
		mr.Close()

		assert.True(t, d.AcquireOnce(ctx, "rollover", "evt-4"))
	})
}

func TestRetryCounter(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	rc := NewRetryCounter(rdb, time.Hour)

	n, err := rc.IncrementAndGet(ctx, "retry:q:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = rc.IncrementAndGet(ctx, "retry:q:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.TTL("retry:q:1") > 0)

	got, err := rc.Get(ctx, "retry:q:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	require.NoError(t, rc.Reset(ctx, "retry:q:1"))
	got, err = rc.Get(ctx, "retry:q:1")
	require.NoError(t, err)
	assert.Zero(t, got)
}
