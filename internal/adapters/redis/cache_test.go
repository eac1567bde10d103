package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backend "github.com/redis/go-redis/v9"

	"github.com/studyhall/attempts/internal/adapters/redis"
	"github.com/studyhall/attempts/pkg/domain"
)

func newCache(t *testing.T) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	return redis.NewFromClient(client), mr
}

func TestCache_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t)

	require.NoError(t, cache.Put(ctx, "s1", []byte(`{"id":"s1"}`), time.Minute))

	val, err := cache.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"s1"}`), val)

	require.NoError(t, cache.Delete(ctx, "s1"))

	_, err = cache.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestCache_MissOnAbsentKey(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t)

	_, err := cache.Get(ctx, "never-written")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t)

	require.NoError(t, cache.Put(ctx, "s2", []byte("payload"), 30*time.Second))

	// miniredis advances TTLs manually
	mr.FastForward(31 * time.Second)

	_, err := cache.Get(ctx, "s2")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestCache_DeleteAbsentKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t)

	assert.NoError(t, cache.Delete(ctx, "absent"))
}
