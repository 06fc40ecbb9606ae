package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hexastock/internal/types"
)

// Transaction is an immutable journal entry. Cash movements carry an empty
// symbol, the amount as Quantity and a unit price of 1.
type Transaction struct {
	ID           string                `json:"id" db:"id"`
	PortfolioID  string                `json:"portfolioId" db:"portfolio_id"`
	Sequence     int64                 `json:"sequence" db:"sequence"`
	Type         types.TransactionType `json:"type" db:"type"`
	Symbol       string                `json:"symbol,omitempty" db:"symbol"`
	Quantity     decimal.Decimal       `json:"quantity" db:"quantity"`
	UnitPrice    decimal.Decimal       `json:"unitPrice" db:"unit_price"`
	RealizedGain decimal.Decimal       `json:"realizedGain" db:"realized_gain"`
	Timestamp    time.Time             `json:"timestamp" db:"occurred_at"`
}

// Amount returns quantity x unit price
func (t *Transaction) Amount() decimal.Decimal {
	return t.Quantity.Mul(t.UnitPrice)
}
