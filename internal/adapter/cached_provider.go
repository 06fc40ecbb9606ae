package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hexastock/internal/ledger"
	"github.com/hexastock/internal/logging"
	"github.com/hexastock/internal/storage"
)

// quoteCache is the subset of storage.RedisCache the cached provider needs
type quoteCache interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
}

// CachedPriceProvider serves quotes from Redis and falls through to the
// wrapped provider on a miss. Cache errors never fail a lookup. Concurrent
// misses for one symbol share a single upstream lookup.
type CachedPriceProvider struct {
	next  PriceProvider
	cache quoteCache
	ttl   time.Duration

	inflightMu sync.Mutex
	inflight   map[string]*inflightQuote

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

// inflightQuote is an upstream lookup other callers can wait on; quote and
// err are set before done is closed
type inflightQuote struct {
	done  chan struct{}
	quote Quote
	err   error
}

// CacheStats counts cache outcomes since the provider was created
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	// Shared counts misses served by another caller's upstream lookup
	Shared int64 `json:"shared"`
}

// NewCachedPriceProvider wraps next with a Redis-backed quote cache
func NewCachedPriceProvider(next PriceProvider, cache quoteCache, ttl time.Duration) *CachedPriceProvider {
	return &CachedPriceProvider{
		next:     next,
		cache:    cache,
		ttl:      ttl,
		inflight: make(map[string]*inflightQuote),
	}
}

// priceCacheKey format: price:<SYMBOL>
func priceCacheKey(symbol string) string {
	return fmt.Sprintf("price:%s", symbol)
}

// GetPrice implements PriceProvider
func (c *CachedPriceProvider) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	symbol = ledger.NormalizeSymbol(symbol)
	key := priceCacheKey(symbol)
	logger := logging.FromContext(ctx).WithField("symbol", symbol)

	var cached Quote
	err := c.cache.GetJSON(ctx, key, &cached)
	switch {
	case err == nil:
		c.hits.Add(1)
		return cached, nil
	case !errors.Is(err, storage.ErrCacheMiss):
		logger.WithError(err).Warn("Price cache read failed")
	}
	c.misses.Add(1)

	call, leader := c.joinInflight(symbol)
	if !leader {
		select {
		case <-call.done:
		case <-ctx.Done():
			return Quote{}, ctx.Err()
		}
		// the leader's caller went away; look up on our own behalf
		if isContextError(call.err) && ctx.Err() == nil {
			return c.next.GetPrice(ctx, symbol)
		}
		c.shared.Add(1)
		return call.quote, call.err
	}

	call.quote, call.err = c.next.GetPrice(ctx, symbol)
	c.completeInflight(symbol, call)
	if call.err != nil {
		return Quote{}, call.err
	}

	if err := c.cache.SetJSON(ctx, key, call.quote, c.ttl); err != nil {
		logger.WithError(err).Warn("Price cache write failed")
	}
	return call.quote, nil
}

// joinInflight returns the running lookup for symbol, or registers a new one
// and reports that the caller must perform it
func (c *CachedPriceProvider) joinInflight(symbol string) (*inflightQuote, bool) {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()

	if call, ok := c.inflight[symbol]; ok {
		return call, false
	}
	call := &inflightQuote{done: make(chan struct{})}
	c.inflight[symbol] = call
	return call, true
}

// completeInflight releases every waiter of call
func (c *CachedPriceProvider) completeInflight(symbol string, call *inflightQuote) {
	c.inflightMu.Lock()
	delete(c.inflight, symbol)
	c.inflightMu.Unlock()
	close(call.done)
}

// Stats returns cache hit and miss counters
func (c *CachedPriceProvider) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.shared.Load(),
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Health forwards to the wrapped provider when it tracks health
func (c *CachedPriceProvider) Health() *ProviderHealth {
	if hr, ok := c.next.(HealthReporter); ok {
		return hr.Health()
	}
	return nil
}
