package searchcredit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionKey(t *testing.T) {
	userID := uuid.New()

	key, err := NewSessionKey(userID, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, userID.String()+":tab-1", key.String())

	_, err = NewSessionKey(userID, "")
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = NewSessionKey(userID, "has space")
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = NewSessionKey(uuid.Nil, "tab-1")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Hour)
	key, _ := NewSessionKey(uuid.New(), "s1")
	other, _ := NewSessionKey(uuid.New(), "s1")

	e, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Entitlements{}, e)

	require.NoError(t, store.MarkPaid(ctx, key, DimensionPlatforms))
	require.NoError(t, store.MarkPaid(ctx, key, DimensionABCRequired))

	e, _ = store.Load(ctx, key)
	assert.Equal(t, Entitlements{Platforms: true, ABCRequired: true}, e)

	e, _ = store.Load(ctx, other)
	assert.Equal(t, Entitlements{}, e, "sessions of different users are isolated")

	require.NoError(t, store.Reset(ctx, key))
	e, _ = store.Load(ctx, key)
	assert.Equal(t, Entitlements{}, e)
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore(time.Hour)
	store.now = func() time.Time { return now }

	key, _ := NewSessionKey(uuid.New(), "s1")
	stale, _ := NewSessionKey(uuid.New(), "s2")
	require.NoError(t, store.MarkPaid(ctx, key, DimensionPlatforms))
	require.NoError(t, store.MarkPaid(ctx, stale, DimensionPlatforms))

	now = now.Add(50 * time.Minute)
	e, _ := store.Load(ctx, key)
	assert.True(t, e.Platforms, "load slides the ttl")

	now = now.Add(50 * time.Minute)
	e, _ = store.Load(ctx, key)
	assert.True(t, e.Platforms)
	assert.Equal(t, 1, store.Sweep())

	now = now.Add(2 * time.Hour)
	e, _ = store.Load(ctx, key)
	assert.False(t, e.Platforms)
}

func TestRedisSessionStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	store := NewRedisSessionStore(client, time.Minute)
	key, _ := NewSessionKey(uuid.New(), NewSessionID())
	defer store.Reset(ctx, key)

	e, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Entitlements{}, e)

	require.NoError(t, store.MarkPaid(ctx, key, DimensionPlatforms, DimensionInspectionTypes))
	require.NoError(t, store.MarkPaid(ctx, key))

	e, err = store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Entitlements{Platforms: true, InspectionTypes: true}, e)

	ttl, err := client.TTL(ctx, keyPrefixEntitlements+key.String()).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	require.NoError(t, store.Reset(ctx, key))
	e, err = store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, Entitlements{}, e)
}
