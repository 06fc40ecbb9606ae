// Package errors defines the categorized error kinds returned by the portfolio engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hexastock/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents malformed or out-of-range input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryBusinessRule represents input that is well-formed but violates an accounting rule
	CategoryBusinessRule ErrorCategory = "business_rule"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents concurrent modification conflicts
	CategoryConflict ErrorCategory = "conflict"
	// CategoryProvider represents price provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents persistence errors
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// Error codes
const (
	CodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	CodeInsufficientHoldings   = "INSUFFICIENT_HOLDINGS"
	CodeSymbolNotHeld          = "SYMBOL_NOT_HELD"
	CodeInvalidQuantity        = "INVALID_QUANTITY"
	CodeInvalidPrice           = "INVALID_PRICE"
	CodeInvalidAmount          = "INVALID_AMOUNT"
	CodeInvalidSymbol          = "INVALID_SYMBOL"
	CodeInvalidTimestamp       = "INVALID_TIMESTAMP"
	CodeInvalidParameter       = "INVALID_PARAMETER"
	CodePriceUnavailable       = "PRICE_UNAVAILABLE"
	CodeReportGenerationFailed = "REPORT_GENERATION_FAILED"
	CodePersistenceFailed      = "PERSISTENCE_FAILED"
	CodePortfolioNotFound      = "PORTFOLIO_NOT_FOUND"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeInternalError          = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Is matches any CategorizedError carrying the same code, so callers can
// write errors.Is(err, ErrInsufficientFunds) regardless of message or details.
func (e *CategorizedError) Is(target error) bool {
	t, ok := target.(*CategorizedError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Sentinels for errors.Is checks.
var (
	ErrInsufficientFunds      = &CategorizedError{Code: CodeInsufficientFunds}
	ErrInsufficientHoldings   = &CategorizedError{Code: CodeInsufficientHoldings}
	ErrSymbolNotHeld          = &CategorizedError{Code: CodeSymbolNotHeld}
	ErrInvalidQuantity        = &CategorizedError{Code: CodeInvalidQuantity}
	ErrInvalidPrice           = &CategorizedError{Code: CodeInvalidPrice}
	ErrInvalidAmount          = &CategorizedError{Code: CodeInvalidAmount}
	ErrInvalidSymbol          = &CategorizedError{Code: CodeInvalidSymbol}
	ErrInvalidTimestamp       = &CategorizedError{Code: CodeInvalidTimestamp}
	ErrPriceUnavailable       = &CategorizedError{Code: CodePriceUnavailable}
	ErrReportGenerationFailed = &CategorizedError{Code: CodeReportGenerationFailed}
	ErrPersistenceFailed      = &CategorizedError{Code: CodePersistenceFailed}
	ErrPortfolioNotFound      = &CategorizedError{Code: CodePortfolioNotFound}
	ErrConcurrentModification = &CategorizedError{Code: CodeConcurrentModification}
)

// Validation errors (4xx)

// NewInvalidQuantityError creates an invalid quantity error
func NewInvalidQuantityError(quantity string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidQuantity,
		Message:    fmt.Sprintf("quantity must be a positive decimal, got %q", quantity),
		Details: map[string]interface{}{
			"quantity": quantity,
		},
	}
}

// NewInvalidPriceError creates an invalid price error
func NewInvalidPriceError(price string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidPrice,
		Message:    fmt.Sprintf("price must be a non-negative decimal, got %q", price),
		Details: map[string]interface{}{
			"price": price,
		},
	}
}

// NewInvalidAmountError creates an invalid cash amount error
func NewInvalidAmountError(amount string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidAmount,
		Message:    fmt.Sprintf("amount must be a positive decimal, got %q", amount),
		Details: map[string]interface{}{
			"amount": amount,
		},
	}
}

// NewInvalidSymbolError creates an invalid symbol error
func NewInvalidSymbolError(symbol string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidSymbol,
		Message:    fmt.Sprintf("invalid symbol: %q", symbol),
		Details: map[string]interface{}{
			"symbol": symbol,
		},
	}
}

// NewInvalidTimestampError creates an error for a transaction dated before the
// portfolio's last journaled activity
func NewInvalidTimestampError(timestamp, lastActivity string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidTimestamp,
		Message:    fmt.Sprintf("timestamp %s precedes last activity %s", timestamp, lastActivity),
		Details: map[string]interface{}{
			"timestamp":    timestamp,
			"lastActivity": lastActivity,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// Business rule errors (4xx)

// NewInsufficientFundsError creates an insufficient funds error
func NewInsufficientFundsError(required, available string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryBusinessRule,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeInsufficientFunds,
		Message:    fmt.Sprintf("insufficient funds: required %s, available %s", required, available),
		Details: map[string]interface{}{
			"required":  required,
			"available": available,
		},
	}
}

// NewInsufficientHoldingsError creates an insufficient holdings error
func NewInsufficientHoldingsError(symbol, requested, held string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryBusinessRule,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeInsufficientHoldings,
		Message:    fmt.Sprintf("insufficient holdings of %s: requested %s, held %s", symbol, requested, held),
		Details: map[string]interface{}{
			"symbol":    symbol,
			"requested": requested,
			"held":      held,
		},
	}
}

// NewSymbolNotHeldError creates a symbol not held error
func NewSymbolNotHeldError(symbol string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryBusinessRule,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeSymbolNotHeld,
		Message:    fmt.Sprintf("symbol not held: %s", symbol),
		Details: map[string]interface{}{
			"symbol": symbol,
		},
	}
}

// NewPortfolioNotFoundError creates a portfolio not found error
func NewPortfolioNotFoundError(id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodePortfolioNotFound,
		Message:    fmt.Sprintf("portfolio not found: %s", id),
		Details: map[string]interface{}{
			"portfolioId": id,
		},
	}
}

// NewConcurrentModificationError creates an optimistic-lock conflict error
func NewConcurrentModificationError(id string, expectedVersion int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeConcurrentModification,
		Message:    fmt.Sprintf("portfolio %s was modified concurrently (expected version %d)", id, expectedVersion),
		Details: map[string]interface{}{
			"portfolioId":     id,
			"expectedVersion": expectedVersion,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// Provider and system errors

// NewPriceUnavailableError creates a price unavailable error
func NewPriceUnavailableError(symbol string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       CodePriceUnavailable,
		Message:    fmt.Sprintf("price unavailable for %s", symbol),
		Cause:      cause,
		Details: map[string]interface{}{
			"symbol": symbol,
		},
	}
}

// NewReportGenerationFailedError wraps the per-holding failure that aborted a report
func NewReportGenerationFailedError(portfolioID string, cause error) *CategorizedError {
	status := http.StatusInternalServerError
	if errors.Is(cause, ErrPriceUnavailable) {
		status = http.StatusBadGateway
	}
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: status,
		Code:       CodeReportGenerationFailed,
		Message:    fmt.Sprintf("report generation failed for portfolio %s", portfolioID),
		Cause:      cause,
		Details: map[string]interface{}{
			"portfolioId": portfolioID,
		},
	}
}

// NewPersistenceError creates a persistence error
func NewPersistenceError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodePersistenceFailed,
		Message:    fmt.Sprintf("persistence failed during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil && catErr.StatusCode != 0 {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is worth retrying by the caller
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase, CategoryConflict:
		return true
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	status := GetHTTPStatusCode(err)
	return status >= 400 && status < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	return GetHTTPStatusCode(err) >= 500
}
