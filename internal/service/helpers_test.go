package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexastock/internal/adapter"
	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// faultyLedger wraps the memory ledger and injects commit failures
type faultyLedger struct {
	*storage.MemoryLedger

	mu        sync.Mutex
	commitErr error
	conflicts int
	commits   int
}

func (f *faultyLedger) Commit(ctx context.Context, p *models.Portfolio, t *models.Transaction) error {
	f.mu.Lock()
	f.commits++
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return apperrors.NewConcurrentModificationError(p.ID, p.Version)
	}
	err := f.commitErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return f.MemoryLedger.Commit(ctx, p, t)
}

// funcProvider adapts a function to adapter.PriceProvider
type funcProvider func(ctx context.Context, symbol string) (adapter.Quote, error)

func (f funcProvider) GetPrice(ctx context.Context, symbol string) (adapter.Quote, error) {
	return f(ctx, symbol)
}

type testEnv struct {
	svc    *PortfolioService
	store  *faultyLedger
	prices *adapter.StaticProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := &faultyLedger{MemoryLedger: storage.NewMemoryLedger()}
	prices := adapter.NewStaticProvider(map[string]decimal.Decimal{})
	svc := New(store, prices)

	clock := func() time.Time { return t0.Add(24 * time.Hour) }
	svc.now = clock
	svc.tracker.now = clock
	svc.reporting.now = clock

	return &testEnv{svc: svc, store: store, prices: prices}
}

// newPortfolio creates a portfolio funded with cash at t0
func (e *testEnv) newPortfolio(t *testing.T, cash string) *models.Portfolio {
	t.Helper()
	ctx := context.Background()

	p, err := e.svc.CreatePortfolio(ctx, &CreatePortfolioInput{Name: "test"})
	require.NoError(t, err)

	if cash != "" && !d(cash).IsZero() {
		_, err := e.svc.Deposit(ctx, p.ID, &CashInput{Amount: d(cash), Timestamp: t0})
		require.NoError(t, err)
	}
	return p
}

func (e *testEnv) buy(t *testing.T, portfolioID, symbol, qty, price string, at time.Time) *models.TradeResult {
	t.Helper()
	res, err := e.svc.Buy(context.Background(), portfolioID, &TradeRequest{
		Symbol: symbol, Quantity: d(qty), Price: d(price), Timestamp: at,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) sell(t *testing.T, portfolioID, symbol, qty, price string, at time.Time) *models.TradeResult {
	t.Helper()
	res, err := e.svc.Sell(context.Background(), portfolioID, &TradeRequest{
		Symbol: symbol, Quantity: d(qty), Price: d(price), Timestamp: at,
	})
	require.NoError(t, err)
	return res
}

// state captures everything a rejected operation must leave untouched
type state struct {
	portfolio *models.Portfolio
	journal   []models.Transaction
}

func (e *testEnv) state(t *testing.T, portfolioID string) state {
	t.Helper()
	p, journal, err := e.store.Snapshot(context.Background(), portfolioID)
	require.NoError(t, err)
	return state{portfolio: p, journal: journal}
}

func assertUnchanged(t *testing.T, before, after state) {
	t.Helper()
	assert.Equal(t, before.portfolio.Version, after.portfolio.Version)
	assertDecimal(t, before.portfolio.Cash.String(), after.portfolio.Cash)
	assert.Equal(t, before.portfolio.Holdings, after.portfolio.Holdings)
	assert.Equal(t, before.journal, after.journal)
}
