package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/quantrail/price-sync/internal/database"
	"github.com/quantrail/price-sync/internal/models"
	"github.com/quantrail/price-sync/internal/source"
)

// defaultSequentialDelay paces SyncSequential between symbols so small
// batches do not hammer the source API
const defaultSequentialDelay = 500 * time.Millisecond

// Store is the subset of the partitioned store the orchestrator uses
type Store interface {
	GetSymbolMapping(symbol string) (*models.SymbolMapping, error)
	UpsertSymbolMappings(mappings []*models.SymbolMapping) error
	UpsertPrices(records []*models.PriceRecord) database.UpsertResult
	CountPrices(symbol string, start, end time.Time) (int, error)
	UpsertStockMetadata(m *models.StockMetadata) error
}

// Source provides reference and historical data from the external API
type Source interface {
	FetchReferenceMasters(ctx context.Context, forceRefresh bool) ([]models.ReferenceEntry, error)
	FetchHistoricalSeries(ctx context.Context, code, symbol string, start, end time.Time) ([]*models.PriceRecord, error)
}

// EventPublisher emits sync lifecycle events. Implementations must be
// safe for concurrent use.
type EventPublisher interface {
	PublishSyncCompleted(ctx context.Context, result *models.SyncResult) error
	PublishMappingsRefreshed(ctx context.Context, count int) error
}

// Orchestrator decides per symbol whether a sync is needed and runs
// many symbol syncs under a concurrency cap
type Orchestrator struct {
	store    Store
	source   Source
	producer EventPublisher
	calendar *TradingCalendar
	logger   *logrus.Logger
	now      func() time.Time
	seqDelay time.Duration
}

// NewOrchestrator creates a sync orchestrator. The producer may be nil
// when event publishing is not configured.
func NewOrchestrator(store Store, src Source, producer EventPublisher, cal *TradingCalendar, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	if cal == nil {
		cal = NewTradingCalendar("")
	}
	return &Orchestrator{
		store:    store,
		source:   src,
		producer: producer,
		calendar: cal,
		logger:   logger,
		now:      time.Now,
		seqDelay: defaultSequentialDelay,
	}
}

// ShouldSync is a cheap pre-check: it compares the expected trading-day
// count in the range against the stored record count without touching
// the source API. forceRefresh always syncs.
func (o *Orchestrator) ShouldSync(symbol string, start, end time.Time, forceRefresh bool) (bool, error) {
	if forceRefresh {
		return true, nil
	}
	expected := o.calendar.BusinessDays(start, end)
	if expected == 0 {
		return false, nil
	}
	stored, err := o.store.CountPrices(symbol, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to count stored prices for %s: %w", symbol, err)
	}
	return stored < expected, nil
}

// SyncOne syncs a single symbol over the given range. When ShouldSync
// says the data is already current it returns a skipped result without
// fetching.
func (o *Orchestrator) SyncOne(ctx context.Context, symbol string, start, end time.Time, forceRefresh bool) (*models.SyncResult, error) {
	mapping, err := o.store.GetSymbolMapping(symbol)
	if err != nil {
		return nil, err
	}
	if !mapping.Matched() {
		return nil, fmt.Errorf("symbol %s has no reference code mapping", symbol)
	}

	should, err := o.ShouldSync(symbol, start, end, forceRefresh)
	if err != nil {
		return nil, err
	}
	if !should {
		return &models.SyncResult{Symbol: symbol, Skipped: true}, nil
	}

	records, err := o.source.FetchHistoricalSeries(ctx, mapping.RefCode, symbol, start, end)
	if err != nil {
		o.recordMetadata(symbol, 0, "failed")
		return nil, fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
	}

	upserted := o.store.UpsertPrices(records)
	result := &models.SyncResult{
		Symbol:   symbol,
		Fetched:  len(records),
		Inserted: upserted.Inserted,
		Updated:  upserted.Updated,
		Errors:   upserted.Errors,
	}

	o.recordMetadata(symbol, result.Inserted+result.Updated, "completed")
	o.publishSyncCompleted(ctx, result)

	o.logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"fetched":  result.Fetched,
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"errors":   result.Errors,
	}).Info("symbol synced")

	return result, nil
}

// SyncMany runs SyncOne for every symbol with at most maxConcurrent in
// flight. Cancellation stops dispatch of not-yet-started symbols;
// in-flight syncs finish to avoid partial writes. Success plus failed
// always equals total.
func (o *Orchestrator) SyncMany(ctx context.Context, symbols []string, start, end time.Time, forceRefresh bool, maxConcurrent int) *models.SyncBatchResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	batch := &models.SyncBatchResult{Total: len(symbols)}
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, symbol := range symbols {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			batch.Failed++
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: not dispatched: %v", symbol, err))
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer sem.Release(1)

			// In-flight syncs run to completion even when the batch is
			// cancelled, so writes are never abandoned halfway.
			_, err := o.SyncOne(context.WithoutCancel(ctx), symbol, start, end, forceRefresh)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Failed++
				batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", symbol, err))
			} else {
				batch.Success++
			}
		}(symbol)
	}

	wg.Wait()
	return batch
}

// SyncSequential syncs symbols one at a time with a fixed delay between
// them. Used for small batches where pacing matters more than speed.
func (o *Orchestrator) SyncSequential(ctx context.Context, symbols []string, start, end time.Time, forceRefresh bool) *models.SyncBatchResult {
	batch := &models.SyncBatchResult{Total: len(symbols)}

	for i, symbol := range symbols {
		if ctx.Err() != nil {
			batch.Failed++
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: not dispatched: %v", symbol, ctx.Err()))
			continue
		}

		if _, err := o.SyncOne(ctx, symbol, start, end, forceRefresh); err != nil {
			batch.Failed++
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", symbol, err))
		} else {
			batch.Success++
		}

		if i < len(symbols)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(o.seqDelay):
			}
		}
	}
	return batch
}

// RefreshMappings refetches the reference list, rematches the given
// local entries against it and persists the resulting mappings
func (o *Orchestrator) RefreshMappings(ctx context.Context, local []models.LocalEntry) ([]*models.SymbolMapping, error) {
	masters, err := o.source.FetchReferenceMasters(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh reference masters: %w", err)
	}

	mappings := source.MatchSymbols(local, masters)
	if err := o.store.UpsertSymbolMappings(mappings); err != nil {
		return nil, err
	}

	if o.producer != nil {
		if err := o.producer.PublishMappingsRefreshed(ctx, len(mappings)); err != nil {
			o.logger.WithError(err).Warn("failed to publish mappings refreshed event")
		}
	}

	matched := 0
	for _, m := range mappings {
		if m.Matched() {
			matched++
		}
	}
	o.logger.WithFields(logrus.Fields{
		"total":   len(mappings),
		"matched": matched,
	}).Info("symbol mappings refreshed")

	return mappings, nil
}

func (o *Orchestrator) recordMetadata(symbol string, records int, status string) {
	meta := &models.StockMetadata{
		Symbol:          symbol,
		LastSyncAt:      o.now(),
		LastSyncRecords: records,
		LastSyncStatus:  status,
	}
	if err := o.store.UpsertStockMetadata(meta); err != nil {
		o.logger.WithField("symbol", symbol).WithError(err).Warn("failed to record sync metadata")
	}
}

func (o *Orchestrator) publishSyncCompleted(ctx context.Context, result *models.SyncResult) {
	if o.producer == nil {
		return
	}
	if err := o.producer.PublishSyncCompleted(ctx, result); err != nil {
		o.logger.WithField("symbol", result.Symbol).WithError(err).Warn("failed to publish sync event")
	}
}
