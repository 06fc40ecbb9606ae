package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hexastock/internal/ledger"
	"github.com/hexastock/internal/logging"
	"github.com/hexastock/internal/models"
)

// ReplayResult reports whether a portfolio's journal reproduces its snapshot
type ReplayResult struct {
	PortfolioID     string    `json:"portfolioId"`
	Consistent      bool      `json:"consistent"`
	JournalEntries  int       `json:"journalEntries"`
	Inconsistencies []string  `json:"inconsistencies,omitempty"`
	CheckedAt       time.Time `json:"checkedAt"`
	Repaired        bool      `json:"repaired"`
}

// Replay rebuilds a portfolio from an empty state with the identity of base
// by re-applying journal in order. It returns the rebuilt snapshot and the
// entries as re-applied, whose RealizedGain is recomputed.
func Replay(base *models.Portfolio, journal []models.Transaction) (*models.Portfolio, []models.Transaction, error) {
	p := &models.Portfolio{
		ID:        base.ID,
		Name:      base.Name,
		Cash:      decimal.Zero,
		Holdings:  make(map[string]*ledger.Holding),
		CreatedAt: base.CreatedAt,
		UpdatedAt: base.CreatedAt,
	}

	replayed := make([]models.Transaction, len(journal))
	for i, entry := range journal {
		t := entry
		if i > 0 && t.Timestamp.Before(p.LastActivityAt) {
			return nil, nil, fmt.Errorf("journal entry %d is older than entry %d", t.Sequence, journal[i-1].Sequence)
		}
		if err := applyTransaction(p, &t); err != nil {
			return nil, nil, fmt.Errorf("journal entry %d (%s %s): %w", t.Sequence, t.Type, t.Symbol, err)
		}
		p.LastActivityAt = t.Timestamp
		p.UpdatedAt = t.Timestamp
		replayed[i] = t
	}
	return p, replayed, nil
}

// VerifyReplay replays the journal and compares the result with the
// persisted snapshot.
func (s *PortfolioService) VerifyReplay(ctx context.Context, portfolioID string) (*ReplayResult, error) {
	p, journal, err := s.tracker.Snapshot(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	result := &ReplayResult{
		PortfolioID:    portfolioID,
		JournalEntries: len(journal),
		CheckedAt:      s.now().UTC(),
	}

	rebuilt, replayed, err := Replay(p, journal)
	if err != nil {
		result.Inconsistencies = append(result.Inconsistencies, err.Error())
	} else {
		result.Inconsistencies = append(result.Inconsistencies, diffSnapshots(p, rebuilt)...)
		result.Inconsistencies = append(result.Inconsistencies, diffRealizedGains(journal, replayed)...)
	}
	result.Consistent = len(result.Inconsistencies) == 0

	if !result.Consistent {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"portfolioId":     portfolioID,
			"inconsistencies": result.Inconsistencies,
		}).Warn("Replay does not match persisted snapshot")
	}
	return result, nil
}

// RepairFromJournal overwrites the persisted snapshot with the one rebuilt
// from the journal. The journal itself is never modified.
func (s *PortfolioService) RepairFromJournal(ctx context.Context, portfolioID string) (*ReplayResult, error) {
	result := &ReplayResult{PortfolioID: portfolioID}

	_, err := s.tracker.Rewrite(ctx, portfolioID, func(current *models.Portfolio, journal []models.Transaction) (*models.Portfolio, error) {
		rebuilt, _, err := Replay(current, journal)
		if err != nil {
			return nil, err
		}
		result.JournalEntries = len(journal)
		result.Inconsistencies = diffSnapshots(current, rebuilt)
		return rebuilt, nil
	})
	if err != nil {
		return nil, err
	}

	result.CheckedAt = s.now().UTC()
	result.Repaired = len(result.Inconsistencies) > 0
	result.Consistent = true

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolioId": portfolioID,
		"repaired":    result.Repaired,
	}).Info("Snapshot rebuilt from journal")
	return result, nil
}

// diffSnapshots lists every accounting difference between two snapshots.
// Version and UpdatedAt are bookkeeping and are not compared.
func diffSnapshots(persisted, rebuilt *models.Portfolio) []string {
	var diffs []string

	if !persisted.Cash.Equal(rebuilt.Cash) {
		diffs = append(diffs, fmt.Sprintf("cash mismatch: persisted=%s, replayed=%s", persisted.Cash, rebuilt.Cash))
	}
	if !persisted.LastActivityAt.Equal(rebuilt.LastActivityAt) {
		diffs = append(diffs, fmt.Sprintf("last activity mismatch: persisted=%s, replayed=%s",
			persisted.LastActivityAt.Format(time.RFC3339Nano), rebuilt.LastActivityAt.Format(time.RFC3339Nano)))
	}

	symbols := make(map[string]struct{})
	for symbol := range persisted.Holdings {
		symbols[symbol] = struct{}{}
	}
	for symbol := range rebuilt.Holdings {
		symbols[symbol] = struct{}{}
	}
	ordered := make([]string, 0, len(symbols))
	for symbol := range symbols {
		ordered = append(ordered, symbol)
	}
	sort.Strings(ordered)

	for _, symbol := range ordered {
		have, inPersisted := persisted.Holdings[symbol]
		want, inRebuilt := rebuilt.Holdings[symbol]
		switch {
		case !inRebuilt:
			diffs = append(diffs, fmt.Sprintf("holding %s persisted but not in journal", symbol))
		case !inPersisted:
			diffs = append(diffs, fmt.Sprintf("holding %s in journal but not persisted", symbol))
		default:
			diffs = append(diffs, diffLots(symbol, have.Lots, want.Lots)...)
		}
	}
	return diffs
}

func diffLots(symbol string, persisted, rebuilt []ledger.Lot) []string {
	if len(persisted) != len(rebuilt) {
		return []string{fmt.Sprintf("holding %s lot count mismatch: persisted=%d, replayed=%d", symbol, len(persisted), len(rebuilt))}
	}

	var diffs []string
	for i := range persisted {
		a, b := persisted[i], rebuilt[i]
		if a.ID != b.ID || !a.Quantity.Equal(b.Quantity) || !a.UnitCost.Equal(b.UnitCost) || !a.AcquiredAt.Equal(b.AcquiredAt) {
			diffs = append(diffs, fmt.Sprintf("holding %s lot %d mismatch: persisted=%s %s@%s, replayed=%s %s@%s",
				symbol, i, a.ID, a.Quantity, a.UnitCost, b.ID, b.Quantity, b.UnitCost))
		}
	}
	return diffs
}

func diffRealizedGains(journal, replayed []models.Transaction) []string {
	var diffs []string
	for i := range journal {
		if !journal[i].RealizedGain.Equal(replayed[i].RealizedGain) {
			diffs = append(diffs, fmt.Sprintf("entry %d realized gain mismatch: journal=%s, replayed=%s",
				journal[i].Sequence, journal[i].RealizedGain, replayed[i].RealizedGain))
		}
	}
	return diffs
}
