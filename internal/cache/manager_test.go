package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m := NewManagerWithClient(client, DefaultConfig(), nil)
	t.Cleanup(func() { m.Close() })
	return m, mr
}

func TestJSONRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetJSON(ctx, "k1", payload{Name: "a", Count: 3}, 0))

	var got payload
	require.NoError(t, m.GetJSON(ctx, "k1", &got))
	assert.Equal(t, payload{Name: "a", Count: 3}, got)
}

func TestMiss(t *testing.T) {
	m, _ := newTestManager(t)
	var got payload
	err := m.GetJSON(context.Background(), "absent", &got)
	assert.True(t, IsCacheMiss(err))
}

func TestTTLExpiry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetJSON(ctx, "k1", payload{Name: "a"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	var got payload
	err := m.GetJSON(ctx, "k1", &got)
	assert.True(t, IsCacheMiss(err))
}

func TestDeleteByPrefix(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetJSON(ctx, "modelconfig:user:u1", payload{}, 0))
	require.NoError(t, m.SetJSON(ctx, "modelconfig:user:u2", payload{}, 0))
	require.NoError(t, m.SetJSON(ctx, "other:k", payload{}, 0))

	require.NoError(t, m.DeleteByPrefix(ctx, "modelconfig:user:"))

	var got payload
	assert.True(t, IsCacheMiss(m.GetJSON(ctx, "modelconfig:user:u1", &got)))
	assert.NoError(t, m.GetJSON(ctx, "other:k", &got))
}
