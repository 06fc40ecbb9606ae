package storage

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/ledger"
	"github.com/hexastock/internal/models"
)

// MemoryLedger keeps portfolios and journals in process memory. Snapshots
// are cloned on the way in and out so callers never share state with it.
type MemoryLedger struct {
	mu         sync.RWMutex
	portfolios map[string]*models.Portfolio
	journals   map[string][]models.Transaction
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		portfolios: make(map[string]*models.Portfolio),
		journals:   make(map[string][]models.Transaction),
	}
}

// Create stores a new portfolio
func (m *MemoryLedger) Create(_ context.Context, p *models.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.portfolios[p.ID]; exists {
		return apperrors.NewConcurrentModificationError(p.ID, p.Version)
	}
	m.portfolios[p.ID] = p.Clone()
	return nil
}

// Load returns a copy of the stored snapshot
func (m *MemoryLedger) Load(_ context.Context, id string) (*models.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.portfolios[id]
	if !ok {
		return nil, apperrors.NewPortfolioNotFoundError(id)
	}
	return p.Clone(), nil
}

// List returns copies of every portfolio ordered by creation time
func (m *MemoryLedger) List(_ context.Context) ([]*models.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Portfolio, 0, len(m.portfolios))
	for _, p := range m.portfolios {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Save replaces the snapshot if the stored version still matches p.Version
func (m *MemoryLedger) Save(_ context.Context, p *models.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersion(p); err != nil {
		return err
	}
	m.store(p)
	return nil
}

// Append adds a journal entry and assigns its sequence number
func (m *MemoryLedger) Append(_ context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[t.PortfolioID]; !ok {
		return apperrors.NewPortfolioNotFoundError(t.PortfolioID)
	}
	m.append(t)
	return nil
}

// Commit stores the snapshot and its journal entry under one critical section
func (m *MemoryLedger) Commit(_ context.Context, p *models.Portfolio, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersion(p); err != nil {
		return err
	}
	m.store(p)
	m.append(t)
	return nil
}

// ListAll returns the journal ordered by timestamp then sequence
func (m *MemoryLedger) ListAll(_ context.Context, portfolioID string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.list(portfolioID, ""), nil
}

// ListBySymbol returns the journal entries for one symbol
func (m *MemoryLedger) ListBySymbol(_ context.Context, portfolioID, symbol string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.list(portfolioID, ledger.NormalizeSymbol(symbol)), nil
}

// Snapshot returns the portfolio and its journal as of the same instant
func (m *MemoryLedger) Snapshot(_ context.Context, id string) (*models.Portfolio, []models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.portfolios[id]
	if !ok {
		return nil, nil, apperrors.NewPortfolioNotFoundError(id)
	}
	return p.Clone(), m.list(id, ""), nil
}

func (m *MemoryLedger) checkVersion(p *models.Portfolio) error {
	stored, ok := m.portfolios[p.ID]
	if !ok {
		return apperrors.NewPortfolioNotFoundError(p.ID)
	}
	if stored.Version != p.Version {
		return apperrors.NewConcurrentModificationError(p.ID, p.Version)
	}
	return nil
}

func (m *MemoryLedger) store(p *models.Portfolio) {
	p.Version++
	m.portfolios[p.ID] = p.Clone()
}

func (m *MemoryLedger) append(t *models.Transaction) {
	journal := m.journals[t.PortfolioID]
	t.Sequence = int64(len(journal)) + 1
	m.journals[t.PortfolioID] = append(journal, *t)
}

func (m *MemoryLedger) list(portfolioID, symbol string) []models.Transaction {
	journal := m.journals[portfolioID]
	out := make([]models.Transaction, 0, len(journal))
	for _, t := range journal {
		if symbol == "" || t.Symbol == symbol {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
