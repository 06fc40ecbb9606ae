package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/types"
)

var unitPrice = decimal.NewFromInt(1)

// Journal reads the append-only transaction log. Entries are only ever
// written by the PositionTracker, in the same unit of work as the snapshot.
type Journal struct {
	store TransactionStore
}

// NewJournal creates a new journal reader
func NewJournal(store TransactionStore) *Journal {
	return &Journal{store: store}
}

// History returns the portfolio's journal, or only the entries for symbol
// when it is not empty.
func (j *Journal) History(ctx context.Context, portfolioID, symbol string) ([]models.Transaction, error) {
	if symbol == "" {
		txs, err := j.store.ListAll(ctx, portfolioID)
		if err != nil {
			return nil, storeError("list transactions", err)
		}
		return txs, nil
	}

	normalized, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}
	txs, err := j.store.ListBySymbol(ctx, portfolioID, normalized)
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	return txs, nil
}

// Draft entries. ID, portfolio, sequence and realized gain are filled in
// when the entry is applied and committed.

func tradeEntry(txType types.TransactionType, symbol string, quantity, price decimal.Decimal, at time.Time) models.Transaction {
	return models.Transaction{
		Type:      txType,
		Symbol:    symbol,
		Quantity:  quantity,
		UnitPrice: price,
		Timestamp: at,
	}
}

func cashEntry(txType types.TransactionType, amount decimal.Decimal, at time.Time) models.Transaction {
	return models.Transaction{
		Type:      txType,
		Quantity:  amount,
		UnitPrice: unitPrice,
		Timestamp: at,
	}
}

// groupBySymbol splits trade entries by symbol, keeping journal order
func groupBySymbol(journal []models.Transaction) map[string][]models.Transaction {
	groups := make(map[string][]models.Transaction)
	for _, t := range journal {
		if !t.Type.IsTrade() {
			continue
		}
		groups[t.Symbol] = append(groups[t.Symbol], t)
	}
	return groups
}

// storeError keeps categorized store errors and reports anything else as a
// persistence failure.
func storeError(operation string, err error) error {
	var ce *apperrors.CategorizedError
	if errors.As(err, &ce) {
		return ce
	}
	return apperrors.NewPersistenceError(operation, err)
}
