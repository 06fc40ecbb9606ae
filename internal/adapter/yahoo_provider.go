package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/hexastock/internal/circuitbreaker"
	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/ledger"
	"github.com/hexastock/internal/logging"
	"github.com/hexastock/internal/retry"
)

// YahooConfig configures the Yahoo Finance chart provider
type YahooConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RPS       float64
	Burst     int
	UserAgent string
	Retry     *retry.RetryConfig
	Breaker   *circuitbreaker.Config
	// Quota, when set, is consulted before every upstream call
	Quota CallQuota
}

// CallQuota is an upstream allowance shared with other processes
type CallQuota interface {
	Wait(ctx context.Context) error
}

// YahooProvider fetches quotes from the Yahoo Finance v8 chart API. Calls
// are throttled by a token bucket, retried with exponential backoff on
// transient failures and guarded by a circuit breaker.
type YahooProvider struct {
	baseURL     string
	userAgent   string
	client      *http.Client
	limiter     *rate.Limiter
	quota       CallQuota
	retryConfig *retry.RetryConfig
	breaker     *circuitbreaker.CircuitBreaker
	health      *healthTracker
}

// statusError is a non-200 upstream response
type statusError struct {
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("yahoo http %d", e.StatusCode)
}

// Temporary reports whether the status is worth retrying
func (e *statusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NewYahooProvider creates a new Yahoo provider
func NewYahooProvider(cfg YahooConfig) *YahooProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "hexastock/1.0"
	}

	retryConfig := cfg.Retry
	if retryConfig == nil {
		retryConfig = retry.DefaultRetryConfig()
	}
	if retryConfig.ShouldRetry == nil {
		retryConfig.ShouldRetry = isTransient
	}

	breakerConfig := cfg.Breaker
	if breakerConfig == nil {
		breakerConfig = circuitbreaker.DefaultConfig("yahoo-prices")
	}
	if breakerConfig.IsFailure == nil {
		breakerConfig.IsFailure = func(err error) bool {
			return !errors.Is(err, ErrSymbolNotFound) && !errors.Is(err, context.Canceled)
		}
	}

	return &YahooProvider{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		client:      &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		quota:       cfg.Quota,
		retryConfig: retryConfig,
		breaker:     circuitbreaker.NewCircuitBreaker(breakerConfig),
		health:      newHealthTracker("yahoo"),
	}
}

// GetPrice implements PriceProvider
func (p *YahooProvider) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	symbol = ledger.NormalizeSymbol(symbol)
	if symbol == "" {
		return Quote{}, apperrors.NewPriceUnavailableError(symbol, ErrSymbolNotFound)
	}

	var quote Quote
	result := retry.WithExponentialBackoff(ctx, p.retryConfig, func(ctx context.Context, attempt int) error {
		return p.breaker.Execute(ctx, func(ctx context.Context) error {
			q, err := p.fetch(ctx, symbol)
			if err != nil {
				return err
			}
			quote = q
			return nil
		})
	})

	if !result.Success {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"symbol":   symbol,
			"attempts": result.Attempts,
		}).WithError(result.LastError).Warn("Price lookup failed")
		return Quote{}, apperrors.NewPriceUnavailableError(symbol, result.LastError)
	}
	return quote, nil
}

// Health implements HealthReporter
func (p *YahooProvider) Health() *ProviderHealth {
	h := p.health.Snapshot()
	h.CircuitState = string(p.breaker.GetState())
	return h
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice json.Number `json:"regularMarketPrice"`
				RegularMarketTime  int64       `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []json.Number `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *YahooProvider) fetch(ctx context.Context, symbol string) (Quote, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}
	if p.quota != nil {
		if err := p.quota.Wait(ctx); err != nil {
			return Quote{}, err
		}
	}

	start := time.Now()
	quote, err := p.doFetch(ctx, symbol)
	if err != nil {
		if !errors.Is(err, ErrSymbolNotFound) {
			p.health.RecordFailure()
		}
		return Quote{}, err
	}
	p.health.RecordSuccess(time.Since(start))
	return quote, nil
}

func (p *YahooProvider) doFetch(ctx context.Context, symbol string) (Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d", p.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("yahoo request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, &statusError{StatusCode: resp.StatusCode}
	}

	var raw chartResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return Quote{}, fmt.Errorf("failed to decode yahoo response: %w", err)
	}
	if raw.Chart.Error != nil || len(raw.Chart.Result) == 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	r := raw.Chart.Result[0]
	price, _ := decimal.NewFromString(r.Meta.RegularMarketPrice.String())
	asOf := time.Unix(r.Meta.RegularMarketTime, 0)

	// Fall back to the last non-empty close when meta is missing
	if (!price.IsPositive() || r.Meta.RegularMarketTime == 0) && len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		n := len(closes)
		if len(r.Timestamp) < n {
			n = len(r.Timestamp)
		}
		for i := n - 1; i >= 0; i-- {
			c, err := decimal.NewFromString(closes[i].String())
			if err == nil && c.IsPositive() {
				price = c
				asOf = time.Unix(r.Timestamp[i], 0)
				break
			}
		}
	}

	if !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	if r.Meta.RegularMarketTime == 0 && asOf.Unix() == 0 {
		asOf = time.Now()
	}

	return Quote{Symbol: symbol, Price: price, AsOf: asOf.UTC()}, nil
}

// isTransient decides which upstream failures are retried
func isTransient(err error) bool {
	if errors.Is(err, ErrSymbolNotFound) ||
		errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
		errors.Is(err, circuitbreaker.ErrTooManyRequests) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
