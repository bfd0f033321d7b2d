package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCmdable struct {
	values map[string]string
	setNX  []string
}

func (f *fakeCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.setNX = append(f.setNX, key)
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.values, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestReserveCreateClaimsNamespacedKey(t *testing.T) {
	fake := &fakeCmdable{}
	client := &Client{store: fake}

	claimed, err := client.ReserveCreate(context.Background(), "local-1", 55, time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.Len(t, fake.setNX, 1)
	assert.Equal(t, "ls:create:local-1", fake.setNX[0])

	// A second claim for the same key loses.
	claimed, err = client.ReserveCreate(context.Background(), "local-1", 99, time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestCreatedItemIDRoundTrip(t *testing.T) {
	fake := &fakeCmdable{}
	client := &Client{store: fake}

	_, err := client.ReserveCreate(context.Background(), "local-1", 55, time.Hour)
	require.NoError(t, err)

	id, err := client.CreatedItemID(context.Background(), "local-1")
	require.NoError(t, err)
	assert.Equal(t, int64(55), id)

	_, err = client.CreatedItemID(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReleaseCreateDropsReservation(t *testing.T) {
	fake := &fakeCmdable{}
	client := &Client{store: fake}

	_, err := client.ReserveCreate(context.Background(), "local-1", 55, time.Hour)
	require.NoError(t, err)
	require.NoError(t, client.ReleaseCreate(context.Background(), "local-1"))

	_, err = client.CreatedItemID(context.Background(), "local-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
