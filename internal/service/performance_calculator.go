package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hexastock/internal/adapter"
	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/ledger"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/types"
)

var hundred = decimal.NewFromInt(100)

// percentPlaces is the precision of every percentage the engine reports
const percentPlaces = 4

// PerformanceCalculator prices a holding and derives its gains. It does no
// retrying of its own; a failed lookup is returned as PRICE_UNAVAILABLE.
type PerformanceCalculator struct {
	prices adapter.PriceProvider
}

// NewPerformanceCalculator creates a new performance calculator
func NewPerformanceCalculator(prices adapter.PriceProvider) *PerformanceCalculator {
	return &PerformanceCalculator{prices: prices}
}

// Evaluate fetches the current price for h and computes its performance
// record. history may hold entries for any symbol; only h's are used.
func (c *PerformanceCalculator) Evaluate(ctx context.Context, h *ledger.Holding, history []models.Transaction) (models.PerformanceRecord, error) {
	quote, err := c.prices.GetPrice(ctx, h.Symbol)
	if err != nil {
		if !errors.Is(err, apperrors.ErrPriceUnavailable) {
			err = apperrors.NewPriceUnavailableError(h.Symbol, err)
		}
		return models.PerformanceRecord{}, err
	}
	if quote.Price.IsNegative() {
		return models.PerformanceRecord{}, apperrors.NewPriceUnavailableError(h.Symbol, fmt.Errorf("negative price %s", quote.Price))
	}

	return ComputePerformance(h, quote, history), nil
}

// ComputePerformance is the pure part of Evaluate. AllocationPct is left at
// zero; it depends on the rest of the portfolio.
func ComputePerformance(h *ledger.Holding, quote adapter.Quote, history []models.Transaction) models.PerformanceRecord {
	quantity := h.TotalQuantity()
	costBasis := h.CostBasis()
	marketValue := quantity.Mul(quote.Price)
	unrealized := marketValue.Sub(costBasis)

	realized := decimal.Zero
	invested := decimal.Zero
	for _, t := range history {
		if t.Symbol != h.Symbol {
			continue
		}
		switch t.Type {
		case types.TransactionBuy:
			invested = invested.Add(t.Amount())
		case types.TransactionSell:
			realized = realized.Add(t.RealizedGain)
		}
	}

	return models.PerformanceRecord{
		Symbol:                 h.Symbol,
		Quantity:               quantity,
		AverageUnitCost:        h.AverageUnitCost(),
		RemainingCostBasis:     costBasis,
		CurrentPrice:           quote.Price,
		PriceAsOf:              quote.AsOf,
		MarketValue:            marketValue,
		UnrealizedGain:         unrealized,
		CumulativeRealizedGain: realized,
		TotalCostEverInvested:  invested,
		TotalReturnPct:         percentOf(unrealized.Add(realized), invested),
		AllocationPct:          decimal.Zero,
	}
}

// percentOf returns part / whole x 100, or zero when whole is zero
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(percentPlaces)
}
