package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hexastock/internal/ledger"
)

// Portfolio is the persisted snapshot of a portfolio: its cash and the
// holdings it exclusively owns.
type Portfolio struct {
	ID             string                     `json:"id" db:"id"`
	Name           string                     `json:"name" db:"name"`
	Cash           decimal.Decimal            `json:"cash" db:"cash"`
	Holdings       map[string]*ledger.Holding `json:"holdings" db:"-"`
	Version        int64                      `json:"version" db:"version"`
	// LastActivityAt is the timestamp of the newest journal entry, zero
	// until the first transaction.
	LastActivityAt time.Time                  `json:"lastActivityAt" db:"last_activity_at"`
	CreatedAt      time.Time                  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time                  `json:"updatedAt" db:"updated_at"`
}

// NewPortfolio creates an empty portfolio with no cash and no activity
func NewPortfolio(name string, now time.Time) *Portfolio {
	now = now.UTC()
	return &Portfolio{
		ID:        uuid.NewString(),
		Name:      name,
		Cash:      decimal.Zero,
		Holdings:  make(map[string]*ledger.Holding),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Holding returns the holding for symbol if one exists
func (p *Portfolio) Holding(symbol string) (*ledger.Holding, bool) {
	h, ok := p.Holdings[ledger.NormalizeSymbol(symbol)]
	return h, ok
}

// Symbols returns the held symbols in ascending order
func (p *Portfolio) Symbols() []string {
	symbols := make([]string, 0, len(p.Holdings))
	for symbol := range p.Holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Clone returns a deep copy so a mutation can be prepared without touching
// the committed snapshot.
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Holdings = make(map[string]*ledger.Holding, len(p.Holdings))
	for symbol, h := range p.Holdings {
		c.Holdings[symbol] = h.Clone()
	}
	return &c
}

// PortfolioSummary is the portfolio view returned by listing endpoints
type PortfolioSummary struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Cash         decimal.Decimal `json:"cash"`
	HoldingCount int             `json:"holdingCount"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Summary builds a PortfolioSummary from the snapshot
func (p *Portfolio) Summary() PortfolioSummary {
	return PortfolioSummary{
		ID:           p.ID,
		Name:         p.Name,
		Cash:         p.Cash,
		HoldingCount: len(p.Holdings),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
