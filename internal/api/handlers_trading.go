package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/service"
)

// tradeRequest is the body of purchase and sale requests
type tradeRequest struct {
	Symbol    string          `json:"symbol"`
	Quantity  json.RawMessage `json:"quantity"`
	Price     json.RawMessage `json:"price"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

type tradeFunc func(ctx context.Context, portfolioID string, req *service.TradeRequest) (*models.TradeResult, error)

// handleBuy handles POST /api/portfolios/:id/purchases
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.portfolioService.Buy)
}

// handleSell handles POST /api/portfolios/:id/sales
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.portfolioService.Sell)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, apply tradeFunc) {
	portfolioID := mux.Vars(r)["id"]

	var req tradeRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	quantity, text, err := parseDecimal(req.Quantity)
	if err != nil {
		respondServiceError(w, r, apperrors.NewInvalidQuantityError(text))
		return
	}
	price, text, err := parseDecimal(req.Price)
	if err != nil {
		respondServiceError(w, r, apperrors.NewInvalidPriceError(text))
		return
	}

	trade := &service.TradeRequest{
		Symbol:   req.Symbol,
		Quantity: quantity,
		Price:    price,
	}
	if req.Timestamp != nil {
		trade.Timestamp = *req.Timestamp
	}

	result, err := apply(r.Context(), portfolioID, trade)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleListHoldings handles GET /api/portfolios/:id/holdings
func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	holdings, err := s.portfolioService.ListHoldings(r.Context(), portfolioID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolioId": portfolioID,
		"holdings":    holdings,
	})
}

// handleGetHolding handles GET /api/portfolios/:id/holdings/:symbol
func (s *Server) handleGetHolding(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	holding, err := s.portfolioService.GetHolding(r.Context(), vars["id"], vars["symbol"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, holding)
}

// handleListTransactions handles GET /api/portfolios/:id/transactions?symbol=
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]
	symbol := r.URL.Query().Get("symbol")

	transactions, err := s.portfolioService.ListTransactions(r.Context(), portfolioID, symbol)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolioId":  portfolioID,
		"transactions": transactions,
		"count":        len(transactions),
	})
}
