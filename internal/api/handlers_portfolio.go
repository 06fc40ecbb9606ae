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

// handleCreatePortfolio handles POST /api/portfolios - Create portfolio
func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	portfolio, err := s.portfolioService.CreatePortfolio(r.Context(), &service.CreatePortfolioInput{Name: req.Name})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, portfolio)
}

// handleListPortfolios handles GET /api/portfolios - List portfolios
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := s.portfolioService.ListPortfolios(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolios": portfolios,
		"count":      len(portfolios),
	})
}

// handleGetPortfolio handles GET /api/portfolios/:id - Get portfolio details
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	portfolio, err := s.portfolioService.GetPortfolio(r.Context(), portfolioID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// cashRequest is the body of deposit and withdrawal requests
type cashRequest struct {
	Amount    json.RawMessage `json:"amount"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

func (req *cashRequest) input() (*service.CashInput, error) {
	amount, text, err := parseDecimal(req.Amount)
	if err != nil {
		return nil, apperrors.NewInvalidAmountError(text)
	}
	input := &service.CashInput{Amount: amount}
	if req.Timestamp != nil {
		input.Timestamp = *req.Timestamp
	}
	return input, nil
}

// handleDeposit handles POST /api/portfolios/:id/deposits
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleCash(w, r, s.portfolioService.Deposit)
}

// handleWithdraw handles POST /api/portfolios/:id/withdrawals
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleCash(w, r, s.portfolioService.Withdraw)
}

type cashFunc func(ctx context.Context, portfolioID string, input *service.CashInput) (*models.TradeResult, error)

func (s *Server) handleCash(w http.ResponseWriter, r *http.Request, apply cashFunc) {
	portfolioID := mux.Vars(r)["id"]

	var req cashRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	input, err := req.input()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result, err := apply(r.Context(), portfolioID, input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}
