package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hexastock/internal/adapter"
	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/ledger"
	"github.com/hexastock/internal/logging"
	"github.com/hexastock/internal/models"
)

const maxPortfolioNameLength = 100

// PortfolioService is the use-case layer in front of the engine: portfolio
// management, trading, holdings, journal, reports and replay.
type PortfolioService struct {
	store     PortfolioStore
	tracker   *PositionTracker
	journal   *Journal
	reporting *ReportingService
	prices    adapter.PriceProvider
	now       func() time.Time
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(
	store PortfolioStore,
	tracker *PositionTracker,
	journal *Journal,
	reporting *ReportingService,
	prices adapter.PriceProvider,
) *PortfolioService {
	return &PortfolioService{
		store:     store,
		tracker:   tracker,
		journal:   journal,
		reporting: reporting,
		prices:    prices,
		now:       time.Now,
	}
}

// New wires a PortfolioService and its components over one ledger
func New(store Ledger, prices adapter.PriceProvider) *PortfolioService {
	tracker := NewPositionTracker(store)
	calculator := NewPerformanceCalculator(prices)
	return NewPortfolioService(
		store,
		tracker,
		NewJournal(store),
		NewReportingService(tracker, calculator),
		prices,
	)
}

// Input types

// CreatePortfolioInput represents input for creating a portfolio
type CreatePortfolioInput struct {
	Name string `json:"name"`
}

// CashInput represents a deposit or withdrawal
type CashInput struct {
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// CreatePortfolio creates an empty portfolio with no cash
func (s *PortfolioService) CreatePortfolio(ctx context.Context, input *CreatePortfolioInput) (*models.Portfolio, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewInvalidParameterError("name", "name is required")
	}
	if len(name) > maxPortfolioNameLength {
		return nil, apperrors.NewInvalidParameterError("name", "name must be at most 100 characters")
	}

	p := models.NewPortfolio(name, s.now())
	if err := s.store.Create(ctx, p); err != nil {
		return nil, storeError("create portfolio", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolioId": p.ID,
		"name":        p.Name,
	}).Info("Portfolio created")
	return p, nil
}

// GetPortfolio returns the committed snapshot of a portfolio
func (s *PortfolioService) GetPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	return s.tracker.Portfolio(ctx, portfolioID)
}

// ListPortfolios returns a summary of every portfolio
func (s *PortfolioService) ListPortfolios(ctx context.Context) ([]models.PortfolioSummary, error) {
	portfolios, err := s.store.List(ctx)
	if err != nil {
		return nil, storeError("list portfolios", err)
	}

	summaries := make([]models.PortfolioSummary, 0, len(portfolios))
	for _, p := range portfolios {
		summaries = append(summaries, p.Summary())
	}
	return summaries, nil
}

// Deposit adds cash to a portfolio
func (s *PortfolioService) Deposit(ctx context.Context, portfolioID string, input *CashInput) (*models.TradeResult, error) {
	return s.tracker.Deposit(ctx, portfolioID, input.Amount, input.Timestamp)
}

// Withdraw removes cash from a portfolio
func (s *PortfolioService) Withdraw(ctx context.Context, portfolioID string, input *CashInput) (*models.TradeResult, error) {
	return s.tracker.Withdraw(ctx, portfolioID, input.Amount, input.Timestamp)
}

// Buy records a purchase
func (s *PortfolioService) Buy(ctx context.Context, portfolioID string, req *TradeRequest) (*models.TradeResult, error) {
	return s.tracker.ApplyBuy(ctx, portfolioID, *req)
}

// Sell records a sale; the result carries the realized gain
func (s *PortfolioService) Sell(ctx context.Context, portfolioID string, req *TradeRequest) (*models.TradeResult, error) {
	return s.tracker.ApplySell(ctx, portfolioID, *req)
}

// GetHolding returns one holding with its lots oldest first
func (s *PortfolioService) GetHolding(ctx context.Context, portfolioID, symbol string) (*models.HoldingView, error) {
	normalized, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}

	p, err := s.tracker.Portfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	h, ok := p.Holdings[normalized]
	if !ok {
		return nil, apperrors.NewSymbolNotHeldError(normalized)
	}
	view := holdingView(h)
	return &view, nil
}

// ListHoldings returns every holding ordered by symbol
func (s *PortfolioService) ListHoldings(ctx context.Context, portfolioID string) ([]models.HoldingView, error) {
	p, err := s.tracker.Portfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	views := make([]models.HoldingView, 0, len(p.Holdings))
	for _, symbol := range p.Symbols() {
		views = append(views, holdingView(p.Holdings[symbol]))
	}
	return views, nil
}

// ListTransactions returns the journal, or one symbol's entries
func (s *PortfolioService) ListTransactions(ctx context.Context, portfolioID, symbol string) ([]models.Transaction, error) {
	if _, err := s.tracker.Portfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.journal.History(ctx, portfolioID, symbol)
}

// GetReport generates a performance report valued at current prices
func (s *PortfolioService) GetReport(ctx context.Context, portfolioID string, asOf time.Time) (*models.PortfolioReport, error) {
	return s.reporting.GenerateReport(ctx, portfolioID, asOf)
}

// GetStockPrice returns the current quote for a symbol
func (s *PortfolioService) GetStockPrice(ctx context.Context, symbol string) (*adapter.Quote, error) {
	normalized, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}
	quote, err := s.prices.GetPrice(ctx, normalized)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// PriceHealth returns the price provider's health when it tracks one
func (s *PortfolioService) PriceHealth() *adapter.ProviderHealth {
	if hr, ok := s.prices.(adapter.HealthReporter); ok {
		return hr.Health()
	}
	return nil
}

func holdingView(h *ledger.Holding) models.HoldingView {
	lots := make([]models.LotView, 0, len(h.Lots))
	for _, lot := range h.Lots {
		lots = append(lots, models.LotView{
			ID:         lot.ID,
			Quantity:   lot.Quantity,
			UnitCost:   lot.UnitCost,
			AcquiredAt: lot.AcquiredAt,
		})
	}
	return models.HoldingView{
		Symbol:          h.Symbol,
		Quantity:        h.TotalQuantity(),
		CostBasis:       h.CostBasis(),
		AverageUnitCost: h.AverageUnitCost(),
		Lots:            lots,
	}
}
