package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/types"
)

func TestCreatePortfolio(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.CreatePortfolio(ctx, &CreatePortfolioInput{Name: "  Retirement  "})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Retirement", p.Name)
	assert.True(t, p.Cash.IsZero())
	assert.Empty(t, p.Holdings)
	assert.True(t, p.LastActivityAt.IsZero())

	got, err := env.svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestCreatePortfolio_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"too long", strings.Repeat("x", 101)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreatePortfolio(context.Background(), &CreatePortfolioInput{Name: tt.input})
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeInvalidParameter, apperrors.Categorize(err).Code)
		})
	}
}

func TestListPortfolios(t *testing.T) {
	env := newTestEnv(t)
	first := env.newPortfolio(t, "10")
	env.buy(t, first.ID, "AAPL", "1", "1", t0)
	env.newPortfolio(t, "")

	summaries, err := env.svc.ListPortfolios(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	var found bool
	for _, s := range summaries {
		if s.ID == first.ID {
			found = true
			assertDecimal(t, "9", s.Cash)
			assert.Equal(t, 1, s.HoldingCount)
		}
	}
	assert.True(t, found)
}

func TestListHoldings_SortedWithLots(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPortfolio(t, "100")
	env.buy(t, p.ID, "MSFT", "1", "10", t0)
	env.buy(t, p.ID, "AAPL", "2", "5", t0)
	env.buy(t, p.ID, "AAPL", "2", "7", t0.Add(time.Hour))

	holdings, err := env.svc.ListHoldings(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 2)

	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assertDecimal(t, "4", holdings[0].Quantity)
	assertDecimal(t, "24", holdings[0].CostBasis)
	assertDecimal(t, "6", holdings[0].AverageUnitCost)
	require.Len(t, holdings[0].Lots, 2)
	assertDecimal(t, "5", holdings[0].Lots[0].UnitCost)
	assert.Equal(t, "MSFT", holdings[1].Symbol)
}

func TestListTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.newPortfolio(t, "100")
	env.buy(t, p.ID, "AAPL", "2", "5", t0)
	env.buy(t, p.ID, "MSFT", "1", "10", t0)
	env.sell(t, p.ID, "AAPL", "1", "6", t0.Add(time.Hour))

	all, err := env.svc.ListTransactions(ctx, p.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, types.TransactionDeposit, all[0].Type)

	aapl, err := env.svc.ListTransactions(ctx, p.ID, "aapl")
	require.NoError(t, err)
	require.Len(t, aapl, 2)
	assert.Equal(t, types.TransactionBuy, aapl[0].Type)
	assert.Equal(t, types.TransactionSell, aapl[1].Type)
	assertDecimal(t, "1", aapl[1].RealizedGain)

	_, err = env.svc.ListTransactions(ctx, "missing", "")
	assert.True(t, errors.Is(err, apperrors.ErrPortfolioNotFound))

	_, err = env.svc.ListTransactions(ctx, p.ID, "bad symbol!")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSymbol))
}

func TestGetHolding_Errors(t *testing.T) {
	env := newTestEnv(t)
	p := env.newPortfolio(t, "")

	_, err := env.svc.GetHolding(context.Background(), p.ID, "AAPL")
	assert.True(t, errors.Is(err, apperrors.ErrSymbolNotHeld))

	_, err = env.svc.GetHolding(context.Background(), "missing", "AAPL")
	assert.True(t, errors.Is(err, apperrors.ErrPortfolioNotFound))
}

func TestGetStockPrice(t *testing.T) {
	env := newTestEnv(t)
	env.prices.SetPrice("BRK.B", d("412.35"))

	quote, err := env.svc.GetStockPrice(context.Background(), "brk.b")
	require.NoError(t, err)
	assert.Equal(t, "BRK.B", quote.Symbol)
	assertDecimal(t, "412.35", quote.Price)

	_, err = env.svc.GetStockPrice(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))

	_, err = env.svc.GetStockPrice(context.Background(), "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSymbol))

	assert.Nil(t, env.svc.PriceHealth(), "static provider does not track health")
}
