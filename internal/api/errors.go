package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/logging"
	"github.com/hexastock/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondServiceError maps a service error to its category's status code.
// System errors are logged and their message is not exposed.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)

	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
	}
	if catErr.Category == apperrors.CategorySystem {
		respondError(w, catErr.StatusCode, catErr.Code, "An internal error occurred", nil)
		return
	}
	if catErr.Category == apperrors.CategoryRateLimit {
		if retryAfter, ok := catErr.Details["retryAfter"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
	}

	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// parseDecimal reads a JSON number or numeric string. An absent field is
// zero. The raw text is returned for error details.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, "", nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, string(raw), err
		}
	}
	d, err := decimal.NewFromString(text)
	return d, text, err
}

// Common error codes
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
)
