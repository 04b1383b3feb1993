package gaps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantrail/price-sync/internal/database"
	"github.com/quantrail/price-sync/internal/models"
)

// staleDays is the freshness threshold beyond which a symbol needs an
// update even without interior gaps
const staleDays = 3

// gapListLimit is the largest missing-date count that is listed
// individually instead of summarized as a range
const gapListLimit = 5

// Store is the subset of the partitioned store the analyzer reads from
type Store interface {
	GetSymbolMapping(symbol string) (*models.SymbolMapping, error)
	QueryPrices(symbol string, start, end time.Time, limit int) ([]*models.PriceRecord, error)
}

// HistoryFetcher provides the source's ground-truth trading history
type HistoryFetcher interface {
	FetchHistoricalSeries(ctx context.Context, code, symbol string, start, end time.Time) ([]*models.PriceRecord, error)
}

// Analyzer reconciles locally stored price history against the
// source's trading calendar
type Analyzer struct {
	store  Store
	source HistoryFetcher
	cache  *Cache
	logger *logrus.Logger
	now    func() time.Time
}

// NewAnalyzer creates a gap analyzer. The cache may be nil, in which
// case reports are not snapshotted.
func NewAnalyzer(store Store, source HistoryFetcher, cache *Cache, logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Analyzer{
		store:  store,
		source: source,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// earliestDate is the first day the store supports
func earliestDate() time.Time {
	return time.Date(database.EarliestYear, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// AnalyzeGaps compares the source's complete trading history for a
// symbol against local storage and reports coverage, freshness and
// missing ranges. Missing mappings and empty datasets produce a
// structured report, not an error; only source or store failures
// propagate.
func (a *Analyzer) AnalyzeGaps(ctx context.Context, symbol string) (*models.GapReport, error) {
	report := &models.GapReport{
		Symbol:       symbol,
		CalculatedAt: a.now(),
	}

	mapping, err := a.store.GetSymbolMapping(symbol)
	if err != nil {
		if errors.Is(err, database.ErrMappingNotFound) {
			report.Gaps = []string{"no symbol mapping; run a mapping refresh first"}
			a.snapshot(ctx, report)
			return report, nil
		}
		return nil, err
	}
	if !mapping.Matched() {
		report.Gaps = []string{fmt.Sprintf("no reference code mapped for %s (confidence %.2f)", symbol, mapping.Confidence)}
		a.snapshot(ctx, report)
		return report, nil
	}

	now := a.now()
	sourceRecords, err := a.source.FetchHistoricalSeries(ctx, mapping.RefCode, symbol, earliestDate(), now)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source history for %s: %w", symbol, err)
	}
	if len(sourceRecords) == 0 {
		report.Gaps = []string{"source has no trading history for this symbol"}
		a.snapshot(ctx, report)
		return report, nil
	}

	sourceDates := make(map[string]bool, len(sourceRecords))
	sourceMin, sourceMax := sourceRecords[0].Date, sourceRecords[0].Date
	for _, r := range sourceRecords {
		sourceDates[r.DateKey()] = true
		if r.Date.Before(sourceMin) {
			sourceMin = r.Date
		}
		if r.Date.After(sourceMax) {
			sourceMax = r.Date
		}
	}
	report.SourceCount = len(sourceDates)

	local, err := a.store.QueryPrices(symbol, sourceMin, sourceMax, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query stored prices for %s: %w", symbol, err)
	}
	if len(local) == 0 {
		report.FreshnessDays = daysBetween(sourceMax, now)
		report.NeedsUpdate = true
		report.Gaps = []string{fmt.Sprintf("no local data; source has %d trading days from %s to %s",
			report.SourceCount, sourceMin.Format("2006-01-02"), sourceMax.Format("2006-01-02"))}
		a.snapshot(ctx, report)
		return report, nil
	}

	localDates := make(map[string]bool, len(local))
	localMin, localMax := local[0].Date, local[0].Date
	var lastRecord *models.PriceRecord
	for _, r := range local {
		localDates[r.DateKey()] = true
		if r.Date.Before(localMin) {
			localMin = r.Date
		}
		if !r.Date.Before(localMax) {
			localMax = r.Date
			lastRecord = r
		}
	}

	var missing, extra []string
	for d := range sourceDates {
		if !localDates[d] {
			missing = append(missing, d)
		}
	}
	for d := range localDates {
		if !sourceDates[d] {
			extra = append(extra, d)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	report.HasData = true
	report.RecordCount = len(localDates)
	report.FirstDate = &localMin
	report.LastDate = &localMax
	if lastRecord != nil {
		report.LastPrice = lastRecord.Close
	}

	covered := report.SourceCount - len(missing)
	if report.SourceCount > 0 {
		report.CoveragePct = roundOne(float64(covered) / float64(report.SourceCount) * 100)
	}

	if len(missing) > 0 {
		oldestMissing, _ := time.Parse("2006-01-02", missing[0])
		if oldestMissing.After(localMax) {
			// Every missing date is after the last stored one; the
			// dataset is merely behind, not internally gapped.
			report.FreshnessDays = daysBetween(localMax, now)
		} else {
			report.FreshnessDays = daysBetween(oldestMissing, now)
		}
	} else {
		report.FreshnessDays = daysBetween(sourceMax, now)
	}

	report.NeedsUpdate = len(missing) > 0 || report.FreshnessDays > staleDays
	report.Gaps = describeGaps(missing, extra, report.FreshnessDays)

	a.snapshot(ctx, report)
	return report, nil
}

// describeGaps builds the human-readable gap summary
func describeGaps(missing, extra []string, freshness int) []string {
	var gaps []string
	if n := len(missing); n > 0 {
		if n <= gapListLimit {
			for _, d := range missing {
				gaps = append(gaps, "missing "+d)
			}
		} else {
			gaps = append(gaps, fmt.Sprintf("missing %d dates between %s and %s", n, missing[0], missing[n-1]))
		}
	}
	if freshness > staleDays {
		gaps = append(gaps, fmt.Sprintf("data is %d days stale", freshness))
	}
	if n := len(extra); n > 0 {
		gaps = append(gaps, fmt.Sprintf("%d local dates not present in source history", n))
	}
	return gaps
}

// snapshot persists the report to the gap_status cache when configured.
// The cache is advisory; failures only warn.
func (a *Analyzer) snapshot(ctx context.Context, report *models.GapReport) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Put(ctx, report); err != nil {
		a.logger.WithField("symbol", report.Symbol).WithError(err).Warn("failed to cache gap report")
	}
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}
