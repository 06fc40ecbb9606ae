package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/ledger"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/types"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger persists portfolio snapshots, their lots and the
// transaction journal. Numeric columns travel as text so decimals never pass
// through float64.
type PostgresLedger struct {
	db *PostgresDB
}

// NewPostgresLedger creates a new Postgres-backed ledger
func NewPostgresLedger(db *PostgresDB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Create inserts a new, empty portfolio
func (l *PostgresLedger) Create(ctx context.Context, p *models.Portfolio) error {
	query := `
		INSERT INTO portfolios (id, name, cash, version, last_activity_at, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
	`

	_, err := l.db.Pool().Exec(ctx, query,
		p.ID,
		p.Name,
		p.Cash.String(),
		p.Version,
		p.LastActivityAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewPersistenceError("create portfolio", err)
	}
	return nil
}

// Load returns the portfolio snapshot including its lots
func (l *PostgresLedger) Load(ctx context.Context, id string) (*models.Portfolio, error) {
	p, err := loadPortfolio(ctx, l.db.Pool(), id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns every portfolio ordered by creation time
func (l *PostgresLedger) List(ctx context.Context) ([]*models.Portfolio, error) {
	query := `
		SELECT id, name, cash::text, version, last_activity_at, created_at, updated_at
		FROM portfolios
		ORDER BY created_at, id
	`

	rows, err := l.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list portfolios", err)
	}
	defer rows.Close()

	var portfolios []*models.Portfolio
	byID := make(map[string]*models.Portfolio)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("scan portfolio", err)
		}
		portfolios = append(portfolios, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("list portfolios", err)
	}

	lotRows, err := l.db.Pool().Query(ctx, `
		SELECT portfolio_id, id, symbol, quantity::text, unit_cost::text, acquired_at
		FROM lots
		ORDER BY portfolio_id, symbol, position
	`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list lots", err)
	}
	defer lotRows.Close()

	for lotRows.Next() {
		var portfolioID string
		var symbol string
		var lot ledger.Lot
		if err := scanLot(lotRows, &portfolioID, &symbol, &lot); err != nil {
			return nil, apperrors.NewPersistenceError("scan lot", err)
		}
		if p, ok := byID[portfolioID]; ok {
			addLoadedLot(p, symbol, lot)
		}
	}
	if err := lotRows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("list lots", err)
	}

	return portfolios, nil
}

// Save writes the snapshot if the stored version still matches p.Version.
// On success p.Version is advanced.
func (l *PostgresLedger) Save(ctx context.Context, p *models.Portfolio) error {
	err := l.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return saveSnapshot(ctx, tx, p)
	})
	if err != nil {
		return asPersistenceError("save portfolio", err)
	}
	p.Version++
	return nil
}

// Append adds a journal entry, assigning its sequence number
func (l *PostgresLedger) Append(ctx context.Context, t *models.Transaction) error {
	var seq int64
	err := l.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		seq, err = appendTransaction(ctx, tx, t)
		return err
	})
	if err != nil {
		return asPersistenceError("append transaction", err)
	}
	t.Sequence = seq
	return nil
}

// Commit persists the snapshot and its journal entry in one SQL transaction
func (l *PostgresLedger) Commit(ctx context.Context, p *models.Portfolio, t *models.Transaction) error {
	var seq int64
	err := l.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := saveSnapshot(ctx, tx, p); err != nil {
			return err
		}
		var err error
		seq, err = appendTransaction(ctx, tx, t)
		return err
	})
	if err != nil {
		return asPersistenceError("commit transaction", err)
	}
	p.Version++
	t.Sequence = seq
	return nil
}

// ListAll returns the whole journal ordered by timestamp then sequence
func (l *PostgresLedger) ListAll(ctx context.Context, portfolioID string) ([]models.Transaction, error) {
	return listTransactions(ctx, l.db.Pool(), portfolioID, "")
}

// ListBySymbol returns the journal entries for one symbol
func (l *PostgresLedger) ListBySymbol(ctx context.Context, portfolioID, symbol string) ([]models.Transaction, error) {
	return listTransactions(ctx, l.db.Pool(), portfolioID, ledger.NormalizeSymbol(symbol))
}

// Snapshot loads the portfolio and its journal from a single repeatable-read
// transaction so the two always agree.
func (l *PostgresLedger) Snapshot(ctx context.Context, id string) (*models.Portfolio, []models.Transaction, error) {
	var (
		p       *models.Portfolio
		journal []models.Transaction
	)
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := l.db.WithTx(ctx, opts, func(tx pgx.Tx) error {
		var err error
		if p, err = loadPortfolio(ctx, tx, id); err != nil {
			return err
		}
		journal, err = listTransactions(ctx, tx, id, "")
		return err
	})
	if err != nil {
		return nil, nil, asPersistenceError("load snapshot", err)
	}
	return p, journal, nil
}

func loadPortfolio(ctx context.Context, q querier, id string) (*models.Portfolio, error) {
	query := `
		SELECT id, name, cash::text, version, last_activity_at, created_at, updated_at
		FROM portfolios
		WHERE id = $1
	`

	p, err := scanPortfolio(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewPortfolioNotFoundError(id)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			// not a valid uuid, so it cannot exist
			return nil, apperrors.NewPortfolioNotFoundError(id)
		}
		return nil, apperrors.NewPersistenceError("load portfolio", err)
	}

	rows, err := q.Query(ctx, `
		SELECT portfolio_id, id, symbol, quantity::text, unit_cost::text, acquired_at
		FROM lots
		WHERE portfolio_id = $1
		ORDER BY symbol, position
	`, id)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load lots", err)
	}
	defer rows.Close()

	for rows.Next() {
		var portfolioID, symbol string
		var lot ledger.Lot
		if err := scanLot(rows, &portfolioID, &symbol, &lot); err != nil {
			return nil, apperrors.NewPersistenceError("scan lot", err)
		}
		addLoadedLot(p, symbol, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("load lots", err)
	}

	return p, nil
}

func saveSnapshot(ctx context.Context, tx pgx.Tx, p *models.Portfolio) error {
	tag, err := tx.Exec(ctx, `
		UPDATE portfolios
		SET name = $2, cash = $3::numeric, version = $4 + 1, last_activity_at = $5, updated_at = $6
		WHERE id = $1 AND version = $4
	`, p.ID, p.Name, p.Cash.String(), p.Version, p.LastActivityAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM portfolios WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check portfolio: %w", err)
		}
		if !exists {
			return apperrors.NewPortfolioNotFoundError(p.ID)
		}
		return apperrors.NewConcurrentModificationError(p.ID, p.Version)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM lots WHERE portfolio_id = $1`, p.ID); err != nil {
		return fmt.Errorf("failed to clear lots: %w", err)
	}

	batch := &pgx.Batch{}
	for _, symbol := range p.Symbols() {
		for i, lot := range p.Holdings[symbol].Lots {
			batch.Queue(`
				INSERT INTO lots (id, portfolio_id, symbol, position, quantity, unit_cost, acquired_at)
				VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7)
			`, lot.ID, p.ID, symbol, i, lot.Quantity.String(), lot.UnitCost.String(), lot.AcquiredAt)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert lots: %w", err)
	}
	return nil
}

func appendTransaction(ctx context.Context, tx pgx.Tx, t *models.Transaction) (int64, error) {
	var seq int64
	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (id, portfolio_id, sequence, type, symbol, quantity, unit_price, realized_gain, occurred_at)
		SELECT $1, $2, COALESCE(MAX(sequence), 0) + 1, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8
		FROM transactions
		WHERE portfolio_id = $2
		RETURNING sequence
	`,
		t.ID,
		t.PortfolioID,
		string(t.Type),
		t.Symbol,
		t.Quantity.String(),
		t.UnitPrice.String(),
		t.RealizedGain.String(),
		t.Timestamp,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return seq, nil
}

func listTransactions(ctx context.Context, q querier, portfolioID, symbol string) ([]models.Transaction, error) {
	query := `
		SELECT id, portfolio_id, sequence, type, symbol, quantity::text, unit_price::text, realized_gain::text, occurred_at
		FROM transactions
		WHERE portfolio_id = $1 AND ($2 = '' OR symbol = $2)
		ORDER BY occurred_at, sequence
	`

	rows, err := q.Query(ctx, query, portfolioID, symbol)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list transactions", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var (
			t                             models.Transaction
			txType                        string
			quantity, unitPrice, realized string
		)
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.Sequence, &txType, &t.Symbol,
			&quantity, &unitPrice, &realized, &t.Timestamp); err != nil {
			return nil, apperrors.NewPersistenceError("scan transaction", err)
		}

		t.Type = types.TransactionType(txType)
		if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, apperrors.NewPersistenceError("parse quantity", err)
		}
		if t.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, apperrors.NewPersistenceError("parse unit price", err)
		}
		if t.RealizedGain, err = decimal.NewFromString(realized); err != nil {
			return nil, apperrors.NewPersistenceError("parse realized gain", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("list transactions", err)
	}

	return txs, nil
}

func scanPortfolio(row pgx.Row) (*models.Portfolio, error) {
	var (
		p    models.Portfolio
		cash string
	)
	if err := row.Scan(&p.ID, &p.Name, &cash, &p.Version, &p.LastActivityAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("invalid cash %q: %w", cash, err)
	}
	p.LastActivityAt = p.LastActivityAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	p.Holdings = make(map[string]*ledger.Holding)
	return &p, nil
}

func scanLot(rows pgx.Rows, portfolioID, symbol *string, lot *ledger.Lot) error {
	var quantity, unitCost string
	var acquiredAt time.Time
	if err := rows.Scan(portfolioID, &lot.ID, symbol, &quantity, &unitCost, &acquiredAt); err != nil {
		return err
	}

	var err error
	if lot.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return fmt.Errorf("invalid lot quantity %q: %w", quantity, err)
	}
	if lot.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
		return fmt.Errorf("invalid lot unit cost %q: %w", unitCost, err)
	}
	lot.AcquiredAt = acquiredAt.UTC()
	return nil
}

// addLoadedLot appends in stored position order, which is already FIFO order
func addLoadedLot(p *models.Portfolio, symbol string, lot ledger.Lot) {
	h, ok := p.Holdings[symbol]
	if !ok {
		h = ledger.NewHolding(symbol)
		p.Holdings[symbol] = h
	}
	h.Lots = append(h.Lots, lot)
}

// asPersistenceError keeps categorized errors and wraps everything else
func asPersistenceError(operation string, err error) error {
	var ce *apperrors.CategorizedError
	if errors.As(err, &ce) {
		return ce
	}
	return apperrors.NewPersistenceError(operation, err)
}
