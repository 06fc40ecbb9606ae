package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceRecord is the derived performance of one holding
type PerformanceRecord struct {
	Symbol                 string          `json:"symbol"`
	Quantity               decimal.Decimal `json:"quantity"`
	AverageUnitCost        decimal.Decimal `json:"averageUnitCost"`
	RemainingCostBasis     decimal.Decimal `json:"remainingCostBasis"`
	CurrentPrice           decimal.Decimal `json:"currentPrice"`
	PriceAsOf              time.Time       `json:"priceAsOf"`
	MarketValue            decimal.Decimal `json:"marketValue"`
	UnrealizedGain         decimal.Decimal `json:"unrealizedGain"`
	CumulativeRealizedGain decimal.Decimal `json:"cumulativeRealizedGain"`
	TotalCostEverInvested  decimal.Decimal `json:"totalCostEverInvested"`
	TotalReturnPct         decimal.Decimal `json:"totalReturnPct"`
	AllocationPct          decimal.Decimal `json:"allocationPct"`
}

// PortfolioReport aggregates the performance of every holding in a portfolio.
// Totals cover held symbols only; gains realized on symbols that are no
// longer held are reported separately in ClosedRealizedGain.
type PortfolioReport struct {
	PortfolioID        string              `json:"portfolioId"`
	AsOf               time.Time           `json:"asOf"`
	Cash               decimal.Decimal     `json:"cash"`
	Records            []PerformanceRecord `json:"records"`
	TotalMarketValue   decimal.Decimal     `json:"totalMarketValue"`
	TotalInvested      decimal.Decimal     `json:"totalInvested"`
	TotalRealizedGain  decimal.Decimal     `json:"totalRealizedGain"`
	TotalGain          decimal.Decimal     `json:"totalGain"`
	ClosedRealizedGain decimal.Decimal     `json:"closedRealizedGain"`
}

// HoldingView is a holding as exposed to callers, with lots oldest first
type HoldingView struct {
	Symbol          string          `json:"symbol"`
	Quantity        decimal.Decimal `json:"quantity"`
	CostBasis       decimal.Decimal `json:"costBasis"`
	AverageUnitCost decimal.Decimal `json:"averageUnitCost"`
	Lots            []LotView       `json:"lots"`
}

// LotView is a read-only lot
type LotView struct {
	ID         string          `json:"id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unitCost"`
	AcquiredAt time.Time       `json:"acquiredAt"`
}

// TradeResult is returned by buy and sell operations
type TradeResult struct {
	Transaction Transaction     `json:"transaction"`
	Cash        decimal.Decimal `json:"cash"`
}
