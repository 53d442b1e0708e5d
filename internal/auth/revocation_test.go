package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kvMock struct {
	keys map[string]time.Duration
}

func (m *kvMock) Set(_ context.Context, key string, _ interface{}, exp time.Duration) *redis.StatusCmd {
	m.keys[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *kvMock) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisRevocations(t *testing.T) {
	ctx := context.Background()
	kv := &kvMock{keys: map[string]time.Duration{}}
	store := NewRedisRevocations(kv, "")

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	require.NoError(t, store.Revoke(ctx, "jti-expired", time.Now().Add(-time.Second)))

	ttl, ok := kv.keys["helper:revoked:jti-1"]
	require.True(t, ok)
	assert.Greater(t, ttl, 50*time.Second)
	assert.NotContains(t, kv.keys, "helper:revoked:jti-expired")

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}
