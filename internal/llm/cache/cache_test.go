package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	store := NewRedisStoreFromClient(client, "test:", time.Hour)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return mr, store
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "absent")
	assert.True(t, errors.Is(err, ErrMiss), "expected ErrMiss, got %v", err)

	require.NoError(t, store.Set(ctx, "k", []byte("v1"), 0))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	require.NoError(t, store.Set(ctx, "k", []byte("v2"), 0))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStorageClosed)
	assert.ErrorIs(t, store.Set(ctx, "k", nil, 0), ErrStorageClosed)
	assert.ErrorIs(t, store.Ping(ctx), ErrStorageClosed)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(10, time.Minute))
}

func TestRedisStore(t *testing.T) {
	_, store := setupMiniredis(t)
	storeContract(t, store)
}

func TestMemoryStore_Eviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, 0)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
	_, err := store.Get(ctx, "a") // a becomes most recent
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	assert.Equal(t, 2, store.Len())
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = store.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	now = now.Add(2 * time.Minute)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 0)

	value := []byte("orig")
	require.NoError(t, store.Set(ctx, "k", value, 0))
	value[0] = 'X'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'Y'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "orig", string(again))
}

func TestRedisStore_TTL(t *testing.T) {
	mr, store := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	assert.True(t, mr.Exists("test:k"))

	mr.FastForward(2 * time.Hour)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNew(t *testing.T) {
	store, err := New(Config{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = New(Config{Backend: "memory", MaxEntries: 5})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	mr := miniredis.RunT(t)
	store, err = New(Config{Backend: "redis", TTL: time.Minute, Redis: RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	rs := store.(*RedisStore)
	assert.Equal(t, time.Minute, rs.ttl)
	assert.Equal(t, defaultRedisPrefix, rs.prefix)
	require.NoError(t, store.Close())

	_, err = New(Config{Backend: "redis"})
	assert.Error(t, err)

	_, err = New(Config{Backend: "memcached"})
	assert.Error(t, err)
}
