package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexastock/internal/circuitbreaker"
	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/retry"
)

const chartBody = `{"chart":{"result":[{"meta":{"regularMarketPrice":190.12,"regularMarketTime":1717000000},
"timestamp":[1716900000,1717000000],"indicators":{"quote":[{"close":[189.5,190.12]}]}}],"error":null}}`

const chartBodyNoMeta = `{"chart":{"result":[{"meta":{},
"timestamp":[1716800000,1716900000,1717000000],"indicators":{"quote":[{"close":[101.5,102.25,null]}]}}],"error":null}}`

func testYahoo(serverURL string) *YahooProvider {
	return NewYahooProvider(YahooConfig{
		BaseURL: serverURL,
		Timeout: time.Second,
		RPS:     1000,
		Burst:   100,
		Retry: &retry.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
		Breaker: &circuitbreaker.Config{
			Name:             "test",
			MaxFailures:      2,
			FailureThreshold: 1,
			Timeout:          time.Hour,
			HalfOpenMaxCalls: 1,
		},
	})
}

func TestYahooProvider_ParsesMetaPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		_, _ = fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	quote, err := testYahoo(srv.URL).GetPrice(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("190.12")), "price = %s", quote.Price)
	assert.Equal(t, time.Unix(1717000000, 0).UTC(), quote.AsOf)
}

func TestYahooProvider_FallsBackToLastClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, chartBodyNoMeta)
	}))
	defer srv.Close()

	quote, err := testYahoo(srv.URL).GetPrice(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("102.25")))
	assert.Equal(t, time.Unix(1716900000, 0).UTC(), quote.AsOf)
}

func TestYahooProvider_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	provider := testYahoo(srv.URL)
	_, err := provider.GetPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	health := provider.Health()
	assert.Equal(t, int64(2), health.TotalRequests)
	assert.Equal(t, int64(1), health.FailedReqs)
	assert.Equal(t, string(circuitbreaker.StateClosed), health.CircuitState)
}

func TestYahooProvider_UnknownSymbolIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testYahoo(srv.URL).GetPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestYahooProvider_CircuitOpensOnPersistentFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	provider := testYahoo(srv.URL)
	_, err := provider.GetPrice(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))
	assert.Equal(t, string(circuitbreaker.StateOpen), provider.Health().CircuitState)

	before := atomic.LoadInt32(&calls)
	_, err = provider.GetPrice(context.Background(), "AAPL")
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
	assert.Equal(t, before, atomic.LoadInt32(&calls), "open circuit must not reach upstream")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&statusError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, isTransient(&statusError{StatusCode: http.StatusInternalServerError}))
	assert.False(t, isTransient(&statusError{StatusCode: http.StatusForbidden}))
	assert.False(t, isTransient(ErrSymbolNotFound))
	assert.False(t, isTransient(circuitbreaker.ErrCircuitOpen))
	assert.True(t, isTransient(errors.New("connection reset")))
}

type countingQuota struct {
	calls atomic.Int32
	err   error
}

func (q *countingQuota) Wait(ctx context.Context) error {
	q.calls.Add(1)
	return q.err
}

func TestYahooProvider_ConsultsQuotaPerUpstreamCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	quota := &countingQuota{}
	p := testYahoo(srv.URL)
	p.quota = quota

	_, err := p.GetPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(2), quota.calls.Load())
}

func TestYahooProvider_QuotaExhaustedSkipsUpstream(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	p := testYahoo(srv.URL)
	p.quota = &countingQuota{err: context.DeadlineExceeded}

	_, err := p.GetPrice(context.Background(), "AAPL")
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))
	assert.Equal(t, int32(0), hits.Load())
}
