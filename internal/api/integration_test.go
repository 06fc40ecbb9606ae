package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexastock/internal/adapter"
	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/service"
	"github.com/hexastock/internal/storage"
)

func newEngineServer() *Server {
	prices := adapter.NewStaticProvider(map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(150),
	})
	return createTestServer(service.New(storage.NewMemoryLedger(), prices))
}

func decodeInto(t *testing.T, raw []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestTradingFlowOverHTTP(t *testing.T) {
	server := newEngineServer()

	w := doRequest(server, "POST", "/api/portfolios", map[string]string{"name": "Retirement"})
	require.Equal(t, http.StatusCreated, w.Code)
	var portfolio models.Portfolio
	decodeInto(t, w.Body.Bytes(), &portfolio)
	base := "/api/portfolios/" + portfolio.ID

	w = doRequest(server, "POST", base+"/deposits", map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doRequest(server, "POST", base+"/purchases", map[string]string{"symbol": "AAPL", "quantity": "5", "price": "100"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doRequest(server, "POST", base+"/sales", map[string]string{"symbol": "AAPL", "quantity": "2", "price": "120"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sale models.TradeResult
	decodeInto(t, w.Body.Bytes(), &sale)
	assert.True(t, sale.Transaction.RealizedGain.Equal(decimal.NewFromInt(40)), "realized gain %s", sale.Transaction.RealizedGain)
	assert.True(t, sale.Cash.Equal(decimal.NewFromInt(740)), "cash %s", sale.Cash)

	w = doRequest(server, "GET", base+"/holdings/AAPL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var holding models.HoldingView
	decodeInto(t, w.Body.Bytes(), &holding)
	assert.True(t, holding.Quantity.Equal(decimal.NewFromInt(3)))
	assert.True(t, holding.CostBasis.Equal(decimal.NewFromInt(300)))

	w = doRequest(server, "GET", base+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report models.PortfolioReport
	decodeInto(t, w.Body.Bytes(), &report)
	require.Len(t, report.Records, 1)
	assert.True(t, report.TotalMarketValue.Equal(decimal.NewFromInt(450)), "market value %s", report.TotalMarketValue)
	assert.True(t, report.Cash.Equal(decimal.NewFromInt(740)))

	w = doRequest(server, "GET", base+"/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Transactions []models.Transaction `json:"transactions"`
		Count        int                  `json:"count"`
	}
	decodeInto(t, w.Body.Bytes(), &listing)
	assert.Equal(t, 3, listing.Count)

	w = doRequest(server, "GET", base+"/replay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var replay service.ReplayResult
	decodeInto(t, w.Body.Bytes(), &replay)
	assert.True(t, replay.Consistent)
	assert.Equal(t, 3, replay.JournalEntries)
}

func TestRejectedTradeOverHTTPLeavesPortfolioUnchanged(t *testing.T) {
	server := newEngineServer()

	w := doRequest(server, "POST", "/api/portfolios", map[string]string{"name": "Small"})
	require.Equal(t, http.StatusCreated, w.Code)
	var portfolio models.Portfolio
	decodeInto(t, w.Body.Bytes(), &portfolio)
	base := "/api/portfolios/" + portfolio.ID

	w = doRequest(server, "POST", base+"/deposits", map[string]string{"amount": "50"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(server, "POST", base+"/purchases", map[string]string{"symbol": "AAPL", "quantity": "1", "price": "100"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperrors.CodeInsufficientFunds, decodeError(t, w).Code)

	w = doRequest(server, "GET", base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var after models.Portfolio
	decodeInto(t, w.Body.Bytes(), &after)
	assert.True(t, after.Cash.Equal(decimal.NewFromInt(50)))
	assert.Empty(t, after.Holdings)
}
