package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/ledger"
)

// StaticProvider serves prices from a fixed table. It backs local runs and
// tests, and prices can be changed at runtime with SetPrice.
type StaticProvider struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	now    func() time.Time
}

// NewStaticProvider creates a provider over the given symbol -> price table
func NewStaticProvider(prices map[string]decimal.Decimal) *StaticProvider {
	table := make(map[string]decimal.Decimal, len(prices))
	for symbol, price := range prices {
		table[ledger.NormalizeSymbol(symbol)] = price
	}
	return &StaticProvider{prices: table, now: time.Now}
}

// SetPrice sets or replaces the price for symbol
func (p *StaticProvider) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[ledger.NormalizeSymbol(symbol)] = price
}

// GetPrice implements PriceProvider
func (p *StaticProvider) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, apperrors.NewPriceUnavailableError(symbol, err)
	}

	symbol = ledger.NormalizeSymbol(symbol)

	p.mu.RLock()
	price, ok := p.prices[symbol]
	p.mu.RUnlock()

	if !ok {
		return Quote{}, apperrors.NewPriceUnavailableError(symbol, ErrSymbolNotFound)
	}
	return Quote{Symbol: symbol, Price: price, AsOf: p.now().UTC()}, nil
}
