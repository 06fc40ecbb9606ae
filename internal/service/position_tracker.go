package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/logging"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/retry"
	"github.com/hexastock/internal/types"
)

// TradeRequest is a BUY or SELL as submitted by a caller. A zero Timestamp
// means now.
type TradeRequest struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// PositionTracker owns every mutation of a portfolio. Mutations of one
// portfolio are serialized by a per-portfolio lock; the store's version
// check catches writers in other processes, and such conflicts are retried
// from a fresh load.
type PositionTracker struct {
	store     Ledger
	locks     *portfolioLocks
	conflicts *retry.RetryConfig
	now       func() time.Time
}

// NewPositionTracker creates a new position tracker
func NewPositionTracker(store Ledger) *PositionTracker {
	return &PositionTracker{
		store: store,
		locks: newPortfolioLocks(),
		conflicts: &retry.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			Multiplier:   2.0,
			ShouldRetry: func(err error) bool {
				return errors.Is(err, apperrors.ErrConcurrentModification)
			},
		},
		now: time.Now,
	}
}

// ApplyBuy opens a new lot and debits quantity x price from cash
func (pt *PositionTracker) ApplyBuy(ctx context.Context, portfolioID string, req TradeRequest) (*models.TradeResult, error) {
	symbol, err := validateSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	if err := validateTrade(req.Quantity, req.Price); err != nil {
		return nil, err
	}
	return pt.apply(ctx, portfolioID, tradeEntry(types.TransactionBuy, symbol, req.Quantity, req.Price, req.Timestamp))
}

// ApplySell consumes lots FIFO and credits the proceeds to cash. The
// realized gain is returned on the journal entry.
func (pt *PositionTracker) ApplySell(ctx context.Context, portfolioID string, req TradeRequest) (*models.TradeResult, error) {
	symbol, err := validateSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	if err := validateTrade(req.Quantity, req.Price); err != nil {
		return nil, err
	}
	return pt.apply(ctx, portfolioID, tradeEntry(types.TransactionSell, symbol, req.Quantity, req.Price, req.Timestamp))
}

// Deposit adds cash
func (pt *PositionTracker) Deposit(ctx context.Context, portfolioID string, amount decimal.Decimal, at time.Time) (*models.TradeResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return pt.apply(ctx, portfolioID, cashEntry(types.TransactionDeposit, amount, at))
}

// Withdraw removes cash
func (pt *PositionTracker) Withdraw(ctx context.Context, portfolioID string, amount decimal.Decimal, at time.Time) (*models.TradeResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return pt.apply(ctx, portfolioID, cashEntry(types.TransactionWithdrawal, amount, at))
}

// Portfolio returns the committed snapshot of one portfolio
func (pt *PositionTracker) Portfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	lock := pt.locks.get(portfolioID)
	lock.RLock()
	defer lock.RUnlock()

	p, err := pt.store.Load(ctx, portfolioID)
	if err != nil {
		return nil, storeError("load portfolio", err)
	}
	return p, nil
}

// Snapshot returns the committed portfolio together with its journal. No
// mutation of the portfolio can interleave with the read.
func (pt *PositionTracker) Snapshot(ctx context.Context, portfolioID string) (*models.Portfolio, []models.Transaction, error) {
	lock := pt.locks.get(portfolioID)
	lock.RLock()
	defer lock.RUnlock()

	p, journal, err := pt.store.Snapshot(ctx, portfolioID)
	if err != nil {
		return nil, nil, storeError("read snapshot", err)
	}
	return p, journal, nil
}

// Rewrite replaces the snapshot with the one returned by fn, holding the
// portfolio's write lock for the whole read-modify-save cycle. fn receives
// the committed snapshot and its journal.
func (pt *PositionTracker) Rewrite(ctx context.Context, portfolioID string, fn func(current *models.Portfolio, journal []models.Transaction) (*models.Portfolio, error)) (*models.Portfolio, error) {
	lock := pt.locks.get(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	current, journal, err := pt.store.Snapshot(ctx, portfolioID)
	if err != nil {
		return nil, storeError("read snapshot", err)
	}

	next, err := fn(current, journal)
	if err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.Version = current.Version
	next.UpdatedAt = pt.now().UTC()

	if err := pt.store.Save(ctx, next); err != nil {
		return nil, storeError("save portfolio", err)
	}
	return next, nil
}

// apply runs one mutation under the portfolio's write lock: load, check the
// timestamp, apply to the loaded copy, then commit snapshot and journal
// entry together. Nothing is written unless every step succeeds.
func (pt *PositionTracker) apply(ctx context.Context, portfolioID string, draft models.Transaction) (*models.TradeResult, error) {
	lock := pt.locks.get(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolioId": portfolioID,
		"type":        draft.Type,
		"symbol":      draft.Symbol,
		"quantity":    draft.Quantity.String(),
	})

	var result *models.TradeResult
	outcome := retry.WithExponentialBackoff(ctx, pt.conflicts, func(ctx context.Context, attempt int) error {
		r, err := pt.applyOnce(ctx, portfolioID, draft)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if !outcome.Success {
		err := outcome.LastError
		if apperrors.IsUserError(err) {
			logger.WithError(err).Warn("Transaction rejected")
		} else {
			logger.WithError(err).Error("Transaction failed")
		}
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"transactionId": result.Transaction.ID,
		"sequence":      result.Transaction.Sequence,
		"realizedGain":  result.Transaction.RealizedGain.String(),
		"cash":          result.Cash.String(),
	}).Info("Transaction committed")

	return result, nil
}

func (pt *PositionTracker) applyOnce(ctx context.Context, portfolioID string, draft models.Transaction) (*models.TradeResult, error) {
	p, err := pt.store.Load(ctx, portfolioID)
	if err != nil {
		return nil, storeError("load portfolio", err)
	}

	now := pt.now().UTC()
	at := draft.Timestamp
	if at.IsZero() {
		at = now
	}
	// the store keeps microseconds
	at = at.UTC().Truncate(time.Microsecond)
	if at.Before(p.LastActivityAt) {
		return nil, apperrors.NewInvalidTimestampError(at.Format(time.RFC3339Nano), p.LastActivityAt.Format(time.RFC3339Nano))
	}

	t := draft
	t.ID = uuid.NewString()
	t.PortfolioID = p.ID
	t.Timestamp = at
	if err := applyTransaction(p, &t); err != nil {
		return nil, err
	}
	p.LastActivityAt = at
	p.UpdatedAt = now

	if err := pt.store.Commit(ctx, p, &t); err != nil {
		return nil, storeError("commit transaction", err)
	}

	return &models.TradeResult{Transaction: t, Cash: p.Cash}, nil
}

// portfolioLocks hands out one RWMutex per portfolio ID
type portfolioLocks struct {
	mu    sync.RWMutex
	locks map[string]*sync.RWMutex
}

func newPortfolioLocks() *portfolioLocks {
	return &portfolioLocks{locks: make(map[string]*sync.RWMutex)}
}

func (l *portfolioLocks) get(portfolioID string) *sync.RWMutex {
	l.mu.RLock()
	lock, exists := l.locks[portfolioID]
	l.mu.RUnlock()

	if exists {
		return lock
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check in case another goroutine created it
	if lock, exists := l.locks[portfolioID]; exists {
		return lock
	}

	lock = &sync.RWMutex{}
	l.locks[portfolioID] = lock
	return lock
}
