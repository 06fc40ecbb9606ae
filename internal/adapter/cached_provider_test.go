package adapter

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexastock/internal/config"
	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/storage"
)

type countingProvider struct {
	calls int32
	inner PriceProvider
}

func (c *countingProvider) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.inner.GetPrice(ctx, symbol)
}

func newMiniredisCache(t *testing.T) (*storage.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	cache, err := storage.NewRedisCache(context.Background(), &config.RedisConfig{Host: host, Port: port, MaxConnections: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestCachedPriceProvider_HitsCacheWithinTTL(t *testing.T) {
	cache, mr := newMiniredisCache(t)
	upstream := &countingProvider{inner: NewStaticProvider(map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("190.5")})}
	provider := NewCachedPriceProvider(upstream, cache, time.Minute)
	ctx := context.Background()

	first, err := provider.GetPrice(ctx, "aapl")
	require.NoError(t, err)
	second, err := provider.GetPrice(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.calls))
	assert.True(t, first.Price.Equal(second.Price))
	assert.True(t, mr.Exists("price:AAPL"))

	mr.FastForward(2 * time.Minute)
	_, err = provider.GetPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&upstream.calls))
}

func TestCachedPriceProvider_DoesNotCacheFailures(t *testing.T) {
	cache, mr := newMiniredisCache(t)
	upstream := &countingProvider{inner: NewStaticProvider(nil)}
	provider := NewCachedPriceProvider(upstream, cache, time.Minute)

	_, err := provider.GetPrice(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))
	assert.False(t, mr.Exists("price:NOPE"))
}

func TestCachedPriceProvider_SurvivesCacheOutage(t *testing.T) {
	cache, mr := newMiniredisCache(t)
	upstream := &countingProvider{inner: NewStaticProvider(map[string]decimal.Decimal{"MSFT": decimal.NewFromInt(410)})}
	provider := NewCachedPriceProvider(upstream, cache, time.Minute)

	mr.Close()

	quote, err := provider.GetPrice(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(410)))
}

func TestCachedPriceProvider_CollapsesConcurrentMisses(t *testing.T) {
	cache, _ := newMiniredisCache(t)

	release := make(chan struct{})
	var calls atomic.Int32
	upstream := providerFunc(func(ctx context.Context, symbol string) (Quote, error) {
		calls.Add(1)
		<-release
		return Quote{Symbol: symbol, Price: decimal.NewFromInt(42)}, nil
	})
	p := NewCachedPriceProvider(upstream, cache, time.Minute)

	const callers = 8
	results := make(chan Quote, callers)
	for i := 0; i < callers; i++ {
		go func() {
			q, err := p.GetPrice(context.Background(), "NVDA")
			assert.NoError(t, err)
			results <- q
		}()
	}

	require.Eventually(t, func() bool { return p.Stats().Misses == callers }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		q := <-results
		assert.True(t, q.Price.Equal(decimal.NewFromInt(42)))
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(callers-1), p.Stats().Shared)
}

func TestCachedPriceProvider_WaiterRetriesWhenLeaderCancelled(t *testing.T) {
	cache, _ := newMiniredisCache(t)

	leaderStarted := make(chan struct{})
	var calls atomic.Int32
	upstream := providerFunc(func(ctx context.Context, symbol string) (Quote, error) {
		if calls.Add(1) == 1 {
			close(leaderStarted)
			<-ctx.Done()
			return Quote{}, ctx.Err()
		}
		return Quote{Symbol: symbol, Price: decimal.NewFromInt(7)}, nil
	})
	p := NewCachedPriceProvider(upstream, cache, time.Minute)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := p.GetPrice(leaderCtx, "AMD")
		leaderDone <- err
	}()
	<-leaderStarted

	waiterDone := make(chan Quote, 1)
	go func() {
		q, err := p.GetPrice(context.Background(), "AMD")
		assert.NoError(t, err)
		waiterDone <- q
	}()
	require.Eventually(t, func() bool { return p.Stats().Misses == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-leaderDone, context.Canceled)
	q := <-waiterDone
	assert.True(t, q.Price.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, int32(2), calls.Load())
}

type providerFunc func(ctx context.Context, symbol string) (Quote, error)

func (f providerFunc) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	return f(ctx, symbol)
}
