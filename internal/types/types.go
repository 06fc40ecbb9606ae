// Package types provides common type definitions for the portfolio engine.
package types

// TransactionType represents the kind of journal entry
type TransactionType string

const (
	// TransactionBuy represents a purchase of shares that creates a lot
	TransactionBuy TransactionType = "BUY"
	// TransactionSell represents a sale of shares that consumes lots
	TransactionSell TransactionType = "SELL"
	// TransactionDeposit represents cash added to a portfolio
	TransactionDeposit TransactionType = "DEPOSIT"
	// TransactionWithdrawal represents cash removed from a portfolio
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

// IsTrade reports whether the transaction moves shares (BUY or SELL)
func (t TransactionType) IsTrade() bool {
	return t == TransactionBuy || t == TransactionSell
}

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionDeposit, TransactionWithdrawal:
		return true
	default:
		return false
	}
}

// StorageBackend selects where portfolios and the journal are persisted
type StorageBackend string

const (
	// BackendMemory keeps everything in process memory
	BackendMemory StorageBackend = "memory"
	// BackendPostgres persists to Postgres through pgx
	BackendPostgres StorageBackend = "postgres"
)

// PriceProviderKind selects the upstream price source
type PriceProviderKind string

const (
	// PriceProviderYahoo fetches quotes from the Yahoo Finance chart API
	PriceProviderYahoo PriceProviderKind = "yahoo"
	// PriceProviderStatic serves quotes from a fixed table
	PriceProviderStatic PriceProviderKind = "static"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
