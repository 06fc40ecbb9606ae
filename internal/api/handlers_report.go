package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// handleGetReport handles GET /api/portfolios/:id/report?asOf=RFC3339
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	var asOf time.Time
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "asOf must be an RFC3339 timestamp", map[string]interface{}{
				"asOf": raw,
			})
			return
		}
		asOf = parsed
	}

	report, err := s.portfolioService.GetReport(r.Context(), portfolioID, asOf)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// handleVerifyReplay handles GET /api/portfolios/:id/replay
func (s *Server) handleVerifyReplay(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	result, err := s.portfolioService.VerifyReplay(r.Context(), portfolioID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetStockPrice handles GET /api/stocks/:symbol/price
func (s *Server) handleGetStockPrice(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	quote, err := s.portfolioService.GetStockPrice(r.Context(), symbol)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, quote)
}
