package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/price-sync/internal/database"
	"github.com/quantrail/price-sync/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	stored   map[string]int
	upserts  []string
	metadata map[string]*models.StockMetadata
	mappings []*models.SymbolMapping
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stored:   make(map[string]int),
		metadata: make(map[string]*models.StockMetadata),
	}
}

func (f *fakeStore) GetSymbolMapping(symbol string) (*models.SymbolMapping, error) {
	return &models.SymbolMapping{Symbol: symbol, RefCode: "code-" + symbol, Confidence: 1.0}, nil
}

func (f *fakeStore) UpsertSymbolMappings(mappings []*models.SymbolMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings = mappings
	return nil
}

func (f *fakeStore) UpsertPrices(records []*models.PriceRecord) database.UpsertResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(records) > 0 {
		f.upserts = append(f.upserts, records[0].Symbol)
	}
	return database.UpsertResult{Inserted: len(records)}
}

func (f *fakeStore) CountPrices(symbol string, start, end time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[symbol], nil
}

func (f *fakeStore) UpsertStockMetadata(m *models.StockMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[m.Symbol] = m
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	failFor  map[string]bool
	inFlight int
	maxSeen  int
	masters  []models.ReferenceEntry
}

func (f *fakeSource) FetchReferenceMasters(ctx context.Context, forceRefresh bool) ([]models.ReferenceEntry, error) {
	return f.masters, nil
}

func (f *fakeSource) FetchHistoricalSeries(ctx context.Context, code, symbol string, start, end time.Time) ([]*models.PriceRecord, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	fail := f.failFor[symbol]
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail {
		return nil, errors.New("source unavailable")
	}
	return []*models.PriceRecord{
		{RefCode: code, Symbol: symbol, Date: start, Close: decimal.NewFromInt(100)},
	}, nil
}

func newTestOrchestrator(store *fakeStore, src *fakeSource) *Orchestrator {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	o := NewOrchestrator(store, src, nil, NewTradingCalendar(""), logger)
	o.seqDelay = time.Millisecond
	return o
}

func weekRange() (time.Time, time.Time) {
	// Monday through Friday
	return time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
}

func TestShouldSync(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakeSource{})
	start, end := weekRange()

	should, err := o.ShouldSync("RELIANCE", start, end, false)
	require.NoError(t, err)
	assert.True(t, should, "nothing stored yet")

	store.stored["RELIANCE"] = 5
	should, err = o.ShouldSync("RELIANCE", start, end, false)
	require.NoError(t, err)
	assert.False(t, should, "all expected business days present")

	store.stored["RELIANCE"] = 3
	should, err = o.ShouldSync("RELIANCE", start, end, false)
	require.NoError(t, err)
	assert.True(t, should)
}

func TestShouldSyncForceRefresh(t *testing.T) {
	store := newFakeStore()
	store.stored["RELIANCE"] = 5
	o := newTestOrchestrator(store, &fakeSource{})
	start, end := weekRange()

	should, err := o.ShouldSync("RELIANCE", start, end, true)
	require.NoError(t, err)
	assert.True(t, should)
}

func TestShouldSyncWeekendOnlyRange(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), &fakeSource{})

	saturday := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)

	should, err := o.ShouldSync("RELIANCE", saturday, sunday, false)
	require.NoError(t, err)
	assert.False(t, should, "no expected trading days means nothing to sync")
}

func TestSyncOne(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakeSource{})
	start, end := weekRange()

	result, err := o.SyncOne(context.Background(), "RELIANCE", start, end, false)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Inserted)

	meta := store.metadata["RELIANCE"]
	require.NotNil(t, meta)
	assert.Equal(t, "completed", meta.LastSyncStatus)
}

func TestSyncOneSkipsWhenCurrent(t *testing.T) {
	store := newFakeStore()
	store.stored["RELIANCE"] = 5
	o := newTestOrchestrator(store, &fakeSource{})
	start, end := weekRange()

	result, err := o.SyncOne(context.Background(), "RELIANCE", start, end, false)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, store.upserts, "no fetch or write for a current symbol")
}

func TestSyncOneSourceFailure(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{failFor: map[string]bool{"RELIANCE": true}}
	o := newTestOrchestrator(store, src)
	start, end := weekRange()

	_, err := o.SyncOne(context.Background(), "RELIANCE", start, end, false)
	require.Error(t, err)

	meta := store.metadata["RELIANCE"]
	require.NotNil(t, meta)
	assert.Equal(t, "failed", meta.LastSyncStatus)
}

func TestSyncManyCounts(t *testing.T) {
	symbols := []string{"S0", "S1", "S2", "S3", "S4", "S5", "S6", "S7", "S8", "S9"}
	start, end := weekRange()

	// Two symbols engineered to fail at the source
	src := &fakeSource{failFor: map[string]bool{"S3": true, "S7": true}}
	o := newTestOrchestrator(newFakeStore(), src)

	batch := o.SyncMany(context.Background(), symbols, start, end, true, 3)

	assert.Equal(t, 8, batch.Success)
	assert.Equal(t, 2, batch.Failed)
	assert.Equal(t, 10, batch.Total)
	assert.Len(t, batch.Errors, 2)
	assert.LessOrEqual(t, src.maxSeen, 3, "concurrency cap respected")
}

func TestSyncManyCountsStableAcrossConcurrency(t *testing.T) {
	symbols := []string{"S0", "S1", "S2", "S3", "S4", "S5", "S6", "S7", "S8", "S9"}
	start, end := weekRange()

	for _, maxConcurrent := range []int{1, 4, 10} {
		src := &fakeSource{failFor: map[string]bool{"S2": true, "S5": true}}
		o := newTestOrchestrator(newFakeStore(), src)

		batch := o.SyncMany(context.Background(), symbols, start, end, true, maxConcurrent)
		assert.Equal(t, 8, batch.Success, "maxConcurrent=%d", maxConcurrent)
		assert.Equal(t, 2, batch.Failed, "maxConcurrent=%d", maxConcurrent)
		assert.Equal(t, batch.Total, batch.Success+batch.Failed, "maxConcurrent=%d", maxConcurrent)
	}
}

func TestSyncManyCancelledBeforeDispatch(t *testing.T) {
	symbols := []string{"S0", "S1", "S2"}
	start, end := weekRange()
	o := newTestOrchestrator(newFakeStore(), &fakeSource{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := o.SyncMany(ctx, symbols, start, end, true, 1)
	assert.Equal(t, batch.Total, batch.Success+batch.Failed)
	assert.Equal(t, 3, batch.Total)
}

func TestSyncSequential(t *testing.T) {
	symbols := []string{"S0", "S1", "S2"}
	start, end := weekRange()

	src := &fakeSource{failFor: map[string]bool{"S1": true}}
	o := newTestOrchestrator(newFakeStore(), src)

	batch := o.SyncSequential(context.Background(), symbols, start, end, true)
	assert.Equal(t, 2, batch.Success)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 1, src.maxSeen, "sequential mode never overlaps requests")
}

func TestRefreshMappings(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{masters: []models.ReferenceEntry{
		{Code: "500325", Symbol: "RELIANCE", Name: "Reliance Industries Ltd"},
	}}
	o := newTestOrchestrator(store, src)

	local := []models.LocalEntry{
		{Symbol: "RELIANCE", CompanyName: "Reliance Industries", IndexName: "NIFTY50"},
		{Symbol: "NOMATCH", CompanyName: "Unmatched Co"},
	}

	mappings, err := o.RefreshMappings(context.Background(), local)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, mappings, store.mappings, "mappings are persisted")

	var rel *models.SymbolMapping
	for _, m := range mappings {
		if m.Symbol == "RELIANCE" {
			rel = m
		}
	}
	require.NotNil(t, rel)
	assert.Equal(t, "500325", rel.RefCode)
	assert.Equal(t, 1.0, rel.Confidence)
}
