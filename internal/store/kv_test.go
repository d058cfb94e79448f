package store

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisKV(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, NewRedisKV(c)
}

func TestRedisKV_GetSetDel(t *testing.T) {
	mr, kv := setupRedisKV(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k2", "v", 0))
	require.NoError(t, kv.Del(ctx, "k2"))
	_, err = kv.Get(ctx, "k2")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisKV_ScanKeys(t *testing.T) {
	_, kv := setupRedisKV(t)
	ctx := context.Background()
	for _, k := range []string{"prefs:a:theme", "prefs:a:language", "prefs:b:theme"} {
		require.NoError(t, kv.Set(ctx, k, "x", 0))
	}

	keys, err := kv.ScanKeys(ctx, "prefs:a:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"prefs:a:language", "prefs:a:theme"}, keys)
}

func TestMemoryKV_TTLAndScan(t *testing.T) {
	kv := NewMemoryKV()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "prefs:a:theme", "dark", time.Second))
	require.NoError(t, kv.Set(ctx, "prefs:a:language", "he", 0))

	keys, _ := kv.ScanKeys(ctx, "prefs:a:*")
	assert.Len(t, keys, 2)

	now = now.Add(2 * time.Second)
	_, err := kv.Get(ctx, "prefs:a:theme")
	assert.ErrorIs(t, err, ErrMiss)
	keys, _ = kv.ScanKeys(ctx, "prefs:a:*")
	assert.Equal(t, []string{"prefs:a:language"}, keys)

	require.NoError(t, kv.Del(ctx, "prefs:a:language"))
	_, err = kv.Get(ctx, "prefs:a:language")
	assert.ErrorIs(t, err, ErrMiss)
}
