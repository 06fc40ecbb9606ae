package service

import (
	"context"

	"github.com/hexastock/internal/models"
)

// Repository interfaces for dependency injection

// PortfolioStore persists portfolio snapshots
type PortfolioStore interface {
	Create(ctx context.Context, p *models.Portfolio) error
	Load(ctx context.Context, id string) (*models.Portfolio, error)
	List(ctx context.Context) ([]*models.Portfolio, error)
	// Save replaces the snapshot when the stored version equals p.Version and
	// then advances p.Version.
	Save(ctx context.Context, p *models.Portfolio) error
}

// TransactionStore is the append-only journal. Listings are ordered by
// timestamp then insertion order.
type TransactionStore interface {
	Append(ctx context.Context, t *models.Transaction) error
	ListAll(ctx context.Context, portfolioID string) ([]models.Transaction, error)
	ListBySymbol(ctx context.Context, portfolioID, symbol string) ([]models.Transaction, error)
}

// UnitOfWork saves a snapshot and appends its journal entry atomically
type UnitOfWork interface {
	Commit(ctx context.Context, p *models.Portfolio, t *models.Transaction) error
}

// SnapshotReader returns a portfolio and its journal as of the same instant
type SnapshotReader interface {
	Snapshot(ctx context.Context, id string) (*models.Portfolio, []models.Transaction, error)
}

// Ledger is everything the engine needs from storage. storage.MemoryLedger
// and storage.PostgresLedger both satisfy it.
type Ledger interface {
	PortfolioStore
	TransactionStore
	UnitOfWork
	SnapshotReader
}
