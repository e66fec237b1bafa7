package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-accounts"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStoreSaveAndGet(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	record := accounts.SessionRecord{
		ID:        "sid-1",
		Subject:   "user-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}

	require.NoError(t, store.Save(ctx, record, time.Hour))

	ok, err := store.Exists(ctx, "sid-1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, record.Subject, got.Subject)
	assert.WithinDuration(t, record.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestRedisStoreExpires(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, accounts.SessionRecord{ID: "sid-1"}, time.Minute))

	mr.FastForward(2 * time.Minute)

	ok, err := store.Exists(ctx, "sid-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "sid-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, accounts.SessionRecord{ID: "sid-1"}, time.Minute))
	require.NoError(t, store.Delete(ctx, "sid-1"))
	// deleting twice is fine
	require.NoError(t, store.Delete(ctx, "sid-1"))
	require.NoError(t, store.Delete(ctx, ""))

	ok, err := store.Exists(ctx, "sid-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreRejectsInvalidRecords(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, accounts.SessionRecord{}, time.Minute))

	expired := accounts.SessionRecord{ID: "sid-1", ExpiresAt: time.Now().Add(-time.Minute)}
	assert.Error(t, store.Save(ctx, expired, 0))
}

func TestRedisStorePrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStoreWithPrefix(client, "custom:")
	require.NoError(t, store.Save(context.Background(), accounts.SessionRecord{ID: "abc"}, time.Minute))

	assert.True(t, mr.Exists("custom:abc"))
}
