package storage

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexastock/internal/config"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	cache, err := NewRedisCache(testContext(t), &config.RedisConfig{
		Host:           host,
		Port:           port,
		MaxConnections: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

type cachedQuote struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func TestRedisCache_JSONRoundTrip(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := testContext(t)

	require.NoError(t, cache.SetJSON(ctx, "price:AAPL", cachedQuote{Symbol: "AAPL", Price: "190.10"}, time.Minute))

	var got cachedQuote
	require.NoError(t, cache.GetJSON(ctx, "price:AAPL", &got))
	assert.Equal(t, "190.10", got.Price)

	require.NoError(t, cache.Del(ctx, "price:AAPL"))
	err := cache.GetJSON(ctx, "price:AAPL", &got)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestRedisCache_Expiry(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := testContext(t)

	require.NoError(t, cache.SetJSON(ctx, "price:MSFT", cachedQuote{Symbol: "MSFT", Price: "410"}, 30*time.Second))
	mr.FastForward(31 * time.Second)

	var got cachedQuote
	assert.True(t, errors.Is(cache.GetJSON(ctx, "price:MSFT", &got), ErrCacheMiss))
}

func TestRedisCache_CorruptValue(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := testContext(t)

	require.NoError(t, mr.Set("price:BAD", "{not json"))

	var got cachedQuote
	err := cache.GetJSON(ctx, "price:BAD", &got)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	_, err := NewRedisCache(testContext(t), &config.RedisConfig{Host: "127.0.0.1", Port: "1", MaxConnections: 1})
	assert.Error(t, err)
}
