package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/hexastock/internal/errors"
	"github.com/hexastock/internal/logging"
	"github.com/hexastock/internal/models"
	"github.com/hexastock/internal/ratelimit"
	"github.com/hexastock/internal/types"
)

// defaultPriceConcurrency caps concurrent price lookups per report
const defaultPriceConcurrency = 8

// ReportingService composes per-holding performance into portfolio reports
type ReportingService struct {
	tracker     *PositionTracker
	calculator  *PerformanceCalculator
	concurrency int
	now         func() time.Time
}

// NewReportingService creates a new reporting service
func NewReportingService(tracker *PositionTracker, calculator *PerformanceCalculator) *ReportingService {
	return &ReportingService{
		tracker:     tracker,
		calculator:  calculator,
		concurrency: defaultPriceConcurrency,
		now:         time.Now,
	}
}

// GenerateReport prices every held symbol and aggregates the results. The
// holdings and journal come from one snapshot, and lookups run after the
// portfolio lock is released. A single failed lookup cancels the rest and
// fails the report with REPORT_GENERATION_FAILED. A zero asOf means now.
func (r *ReportingService) GenerateReport(ctx context.Context, portfolioID string, asOf time.Time) (*models.PortfolioReport, error) {
	if asOf.IsZero() {
		asOf = r.now()
	}

	p, journal, err := r.tracker.Snapshot(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolioId": portfolioID,
		"holdings":    len(p.Holdings),
	})

	history := groupBySymbol(journal)
	symbols := p.Symbols()
	records := make([]models.PerformanceRecord, len(symbols))

	// report lookups must not exhaust the upstream allowance kept for single quotes
	g, gctx := errgroup.WithContext(ratelimit.WithPriority(ctx, ratelimit.PriorityBatch))
	g.SetLimit(r.concurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			record, err := r.calculator.Evaluate(gctx, p.Holdings[symbol], history[symbol])
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.WithError(err).Warn("Report generation failed")
		return nil, apperrors.NewReportGenerationFailedError(portfolioID, err)
	}

	report := &models.PortfolioReport{
		PortfolioID:        p.ID,
		AsOf:               asOf.UTC(),
		Cash:               p.Cash,
		Records:            records,
		TotalMarketValue:   decimal.Zero,
		TotalInvested:      decimal.Zero,
		TotalRealizedGain:  decimal.Zero,
		ClosedRealizedGain: closedRealizedGain(p, journal),
	}

	for _, rec := range records {
		report.TotalMarketValue = report.TotalMarketValue.Add(rec.MarketValue)
		report.TotalInvested = report.TotalInvested.Add(rec.RemainingCostBasis)
		report.TotalRealizedGain = report.TotalRealizedGain.Add(rec.CumulativeRealizedGain)
	}
	report.TotalGain = report.TotalMarketValue.Sub(report.TotalInvested).Add(report.TotalRealizedGain)

	for i := range report.Records {
		report.Records[i].AllocationPct = percentOf(report.Records[i].MarketValue, report.TotalMarketValue)
	}

	logger.WithField("totalMarketValue", report.TotalMarketValue.String()).Debug("Report generated")
	return report, nil
}

// closedRealizedGain sums realized gains of symbols no longer held
func closedRealizedGain(p *models.Portfolio, journal []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range journal {
		if t.Type != types.TransactionSell {
			continue
		}
		if _, held := p.Holdings[t.Symbol]; held {
			continue
		}
		total = total.Add(t.RealizedGain)
	}
	return total
}
