// Package adapter supplies market prices to the portfolio engine. Upstream
// rate limiting, retries, circuit breaking and caching all live here so the
// accounting core only ever sees a Quote or a PRICE_UNAVAILABLE error.
package adapter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrSymbolNotFound is returned when the upstream has no price for a symbol
var ErrSymbolNotFound = errors.New("price: symbol not found")

// Quote is a price observation for one symbol
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"asOf"`
}

// PriceProvider defines the interface for market price sources
type PriceProvider interface {
	// GetPrice returns the latest price for symbol. Failures are reported as
	// PRICE_UNAVAILABLE categorized errors.
	GetPrice(ctx context.Context, symbol string) (Quote, error)
}

// HealthReporter is implemented by providers that track upstream health
type HealthReporter interface {
	Health() *ProviderHealth
}

// ProviderHealth represents the health status of a price provider
type ProviderHealth struct {
	Name             string        `json:"name"`
	TotalRequests    int64         `json:"totalRequests"`
	SuccessfulReqs   int64         `json:"successfulRequests"`
	FailedReqs       int64         `json:"failedRequests"`
	SuccessRate      float64       `json:"successRate"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastSuccess      time.Time     `json:"lastSuccess"`
	LastFailure      time.Time     `json:"lastFailure"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	IsHealthy        bool          `json:"isHealthy"`
	CircuitState     string        `json:"circuitState,omitempty"`
}

// healthTracker records request outcomes for a provider
type healthTracker struct {
	mu sync.RWMutex

	name             string
	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	consecutiveFails int

	maxConsecutiveFails int
	minSuccessRate      float64
}

func newHealthTracker(name string) *healthTracker {
	return &healthTracker{
		name:                name,
		maxConsecutiveFails: 5,
		minSuccessRate:      0.5,
	}
}

// RecordSuccess records a successful request
func (h *healthTracker) RecordSuccess(duration time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.successfulReqs++
	h.totalLatency += duration
	h.lastSuccess = time.Now()
	h.consecutiveFails = 0
}

// RecordFailure records a failed request
func (h *healthTracker) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.failedReqs++
	h.lastFailure = time.Now()
	h.consecutiveFails++
}

// Snapshot returns the current health status
func (h *healthTracker) Snapshot() *ProviderHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var successRate float64
	if h.totalRequests > 0 {
		successRate = float64(h.successfulReqs) / float64(h.totalRequests)
	}

	var avgLatency time.Duration
	if h.successfulReqs > 0 {
		avgLatency = h.totalLatency / time.Duration(h.successfulReqs)
	}

	return &ProviderHealth{
		Name:             h.name,
		TotalRequests:    h.totalRequests,
		SuccessfulReqs:   h.successfulReqs,
		FailedReqs:       h.failedReqs,
		SuccessRate:      successRate,
		AverageLatency:   avgLatency,
		LastSuccess:      h.lastSuccess,
		LastFailure:      h.lastFailure,
		ConsecutiveFails: h.consecutiveFails,
		IsHealthy:        h.isHealthyLocked(),
	}
}

// isHealthyLocked checks health status (must be called with lock held)
func (h *healthTracker) isHealthyLocked() bool {
	if h.consecutiveFails >= h.maxConsecutiveFails {
		return false
	}

	// Only judge the success rate once there is enough data
	if h.totalRequests >= 10 && float64(h.successfulReqs)/float64(h.totalRequests) < h.minSuccessRate {
		return false
	}

	return true
}
