// Package ledger holds the cost-basis lots of a single holding and the FIFO
// consumption policy applied when shares are sold.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveQuantity is returned when a lot or a consumption has quantity <= 0
	ErrNonPositiveQuantity = errors.New("ledger: quantity must be positive")
	// ErrNegativeUnitCost is returned when a lot is created with a negative unit cost
	ErrNegativeUnitCost = errors.New("ledger: unit cost must not be negative")
	// ErrInsufficientQuantity is returned when a consumption exceeds the held quantity
	ErrInsufficientQuantity = errors.New("ledger: insufficient quantity")
)

// Lot is a quantity of a security acquired at one unit cost and time.
// Only Quantity is ever reduced; UnitCost never changes.
type Lot struct {
	ID         string          `json:"id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unitCost"`
	AcquiredAt time.Time       `json:"acquiredAt"`
}

// NewLot creates a lot with a fresh identifier
func NewLot(quantity, unitCost decimal.Decimal, acquiredAt time.Time) (Lot, error) {
	if !quantity.IsPositive() {
		return Lot{}, fmt.Errorf("%w: got %s", ErrNonPositiveQuantity, quantity)
	}
	if unitCost.IsNegative() {
		return Lot{}, fmt.Errorf("%w: got %s", ErrNegativeUnitCost, unitCost)
	}
	return Lot{
		ID:         uuid.NewString(),
		Quantity:   quantity,
		UnitCost:   unitCost,
		AcquiredAt: acquiredAt.UTC(),
	}, nil
}

// Cost returns quantity x unit cost
func (l Lot) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost)
}

// Consumption records how much of one lot a sell used up
type Consumption struct {
	LotID    string
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// ConsumeResult is the outcome of a FIFO consumption
type ConsumeResult struct {
	Cost     decimal.Decimal
	Consumed []Consumption
}

// Holding is the ordered set of lots held for one symbol, oldest first.
type Holding struct {
	Symbol string `json:"symbol"`
	Lots   []Lot  `json:"lots"`
}

// NormalizeSymbol upper-cases and trims a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NewHolding creates an empty holding for symbol
func NewHolding(symbol string) *Holding {
	return &Holding{Symbol: NormalizeSymbol(symbol)}
}

// TotalQuantity returns the sum of all lot quantities
func (h *Holding) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range h.Lots {
		total = total.Add(lot.Quantity)
	}
	return total
}

// CostBasis returns the sum of quantity x unit cost over the remaining lots
func (h *Holding) CostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range h.Lots {
		total = total.Add(lot.Cost())
	}
	return total
}

// AverageUnitCost returns CostBasis / TotalQuantity, or zero for an empty holding
func (h *Holding) AverageUnitCost() decimal.Decimal {
	qty := h.TotalQuantity()
	if qty.IsZero() {
		return decimal.Zero
	}
	return h.CostBasis().Div(qty)
}

// IsEmpty reports whether the holding has no remaining quantity
func (h *Holding) IsEmpty() bool {
	return len(h.Lots) == 0
}

// AddLot inserts lot after every lot acquired at or before it, so ties keep
// creation order.
func (h *Holding) AddLot(lot Lot) error {
	if !lot.Quantity.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrNonPositiveQuantity, lot.Quantity)
	}
	if lot.UnitCost.IsNegative() {
		return fmt.Errorf("%w: got %s", ErrNegativeUnitCost, lot.UnitCost)
	}

	i := len(h.Lots)
	for i > 0 && h.Lots[i-1].AcquiredAt.After(lot.AcquiredAt) {
		i--
	}
	h.Lots = append(h.Lots, Lot{})
	copy(h.Lots[i+1:], h.Lots[i:])
	h.Lots[i] = lot
	return nil
}

// ConsumeFIFO removes quantity from the oldest lots first. Fully consumed
// lots are dropped and a partially consumed lot is reduced in place. The
// holding is left untouched when an error is returned.
func (h *Holding) ConsumeFIFO(quantity decimal.Decimal) (ConsumeResult, error) {
	if !quantity.IsPositive() {
		return ConsumeResult{}, fmt.Errorf("%w: got %s", ErrNonPositiveQuantity, quantity)
	}
	held := h.TotalQuantity()
	if quantity.GreaterThan(held) {
		return ConsumeResult{}, fmt.Errorf("%w: requested %s, held %s", ErrInsufficientQuantity, quantity, held)
	}

	result := ConsumeResult{Cost: decimal.Zero}
	remaining := quantity
	consumedLots := 0

	for i := range h.Lots {
		if remaining.IsZero() {
			break
		}
		lot := &h.Lots[i]
		take := decimal.Min(remaining, lot.Quantity)

		result.Cost = result.Cost.Add(take.Mul(lot.UnitCost))
		result.Consumed = append(result.Consumed, Consumption{
			LotID:    lot.ID,
			Quantity: take,
			UnitCost: lot.UnitCost,
		})

		lot.Quantity = lot.Quantity.Sub(take)
		remaining = remaining.Sub(take)
		if lot.Quantity.IsZero() {
			consumedLots++
		}
	}

	h.Lots = append([]Lot(nil), h.Lots[consumedLots:]...)
	return result, nil
}

// Clone returns a deep copy of the holding
func (h *Holding) Clone() *Holding {
	if h == nil {
		return nil
	}
	lots := make([]Lot, len(h.Lots))
	copy(lots, h.Lots)
	return &Holding{Symbol: h.Symbol, Lots: lots}
}
