package database

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrail/price-sync/internal/models"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func record(code, symbol string, date time.Time, close float64) *models.PriceRecord {
	return &models.PriceRecord{
		RefCode:     code,
		Symbol:      symbol,
		Date:        date,
		Open:        decimal.NewFromFloat(close - 1),
		High:        decimal.NewFromFloat(close + 2),
		Low:         decimal.NewFromFloat(close - 2),
		Close:       decimal.NewFromFloat(close),
		Volume:      100000,
		TradedValue: decimal.NewFromFloat(close * 100000),
	}
}

func TestPriceStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("UpsertPrices creates partitions lazily", func(t *testing.T) {
		testDB.TruncateAll(t)

		result := testDB.UpsertPrices([]*models.PriceRecord{
			record("500325", "RELIANCE", day(2024, 1, 15), 2800),
			record("500325", "RELIANCE", day(2024, 1, 16), 2810),
		})
		assert.Equal(t, 2, result.Inserted)
		assert.Equal(t, 0, result.Updated)
		assert.Equal(t, 0, result.Errors)
	})

	t.Run("UpsertPrices is idempotent", func(t *testing.T) {
		testDB.TruncateAll(t)

		records := []*models.PriceRecord{
			record("500325", "RELIANCE", day(2024, 1, 15), 2800),
			record("500325", "RELIANCE", day(2024, 1, 16), 2810),
		}

		first := testDB.UpsertPrices(records)
		assert.Equal(t, 2, first.Inserted)

		second := testDB.UpsertPrices(records)
		assert.Equal(t, 0, second.Inserted)
		assert.Equal(t, 2, second.Updated)

		stored, err := testDB.QueryPrices("RELIANCE", day(2024, 1, 1), day(2024, 1, 31), 0)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.True(t, decimal.NewFromFloat(2800).Equal(stored[0].Close))
	})

	t.Run("Upsert replaces conflicting row values", func(t *testing.T) {
		testDB.TruncateAll(t)

		testDB.UpsertPrices([]*models.PriceRecord{record("500325", "RELIANCE", day(2024, 1, 15), 2800)})
		testDB.UpsertPrices([]*models.PriceRecord{record("500325", "RELIANCE", day(2024, 1, 15), 2850)})

		stored, err := testDB.QueryPrices("RELIANCE", day(2024, 1, 15), day(2024, 1, 15), 0)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.True(t, decimal.NewFromFloat(2850).Equal(stored[0].Close))
	})

	t.Run("QueryPrices merges across partitions", func(t *testing.T) {
		testDB.TruncateAll(t)

		testDB.UpsertPrices([]*models.PriceRecord{
			record("500325", "RELIANCE", day(2009, 12, 30), 1000),
			record("500325", "RELIANCE", day(2009, 12, 31), 1010),
			record("500325", "RELIANCE", day(2010, 1, 4), 1020),
		})

		stored, err := testDB.QueryPrices("RELIANCE", day(2009, 12, 1), day(2010, 1, 31), 0)
		require.NoError(t, err)
		require.Len(t, stored, 3)

		// Sorted by date ascending with the source partition annotated
		assert.Equal(t, "2005_2009", stored[0].Partition)
		assert.Equal(t, "2010_2014", stored[2].Partition)
		assert.True(t, stored[0].Date.Before(stored[1].Date))
		assert.True(t, stored[1].Date.Before(stored[2].Date))
	})

	t.Run("QueryPrices treats missing partitions as empty", func(t *testing.T) {
		testDB.TruncateAll(t)

		testDB.UpsertPrices([]*models.PriceRecord{record("500325", "RELIANCE", day(2024, 1, 15), 2800)})

		// 2015_2019 was never written; the probe must not fail
		stored, err := testDB.QueryPrices("RELIANCE", day(2015, 1, 1), day(2024, 12, 31), 0)
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})

	t.Run("QueryPrices honors limit", func(t *testing.T) {
		testDB.TruncateAll(t)

		var records []*models.PriceRecord
		for i := 0; i < 10; i++ {
			records = append(records, record("500325", "RELIANCE", day(2024, 1, 2+i), 2800+float64(i)))
		}
		testDB.UpsertPrices(records)

		stored, err := testDB.QueryPrices("RELIANCE", day(2024, 1, 1), day(2024, 1, 31), 3)
		require.NoError(t, err)
		require.Len(t, stored, 3)
		assert.Equal(t, day(2024, 1, 2), stored[0].Date)
	})

	t.Run("CountPrices counts across partitions", func(t *testing.T) {
		testDB.TruncateAll(t)

		testDB.UpsertPrices([]*models.PriceRecord{
			record("500325", "RELIANCE", day(2009, 12, 31), 1000),
			record("500325", "RELIANCE", day(2010, 1, 4), 1020),
		})

		count, err := testDB.CountPrices("RELIANCE", day(2009, 1, 1), day(2010, 12, 31))
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("DeleteSymbolPrices reports per-partition counts", func(t *testing.T) {
		testDB.TruncateAll(t)

		testDB.UpsertPrices([]*models.PriceRecord{
			record("500325", "RELIANCE", day(2007, 6, 1), 500),
			record("500325", "RELIANCE", day(2007, 6, 4), 505),
			record("500325", "RELIANCE", day(2024, 1, 15), 2800),
			record("532540", "TCS", day(2024, 1, 15), 3900),
		})

		counts := testDB.DeleteSymbolPrices("RELIANCE")

		assert.Equal(t, int64(2), counts["2005_2009"])
		assert.Equal(t, int64(1), counts["2020_2024"])
		// Probed but absent or untouched partitions report zero
		assert.Equal(t, int64(0), counts["2010_2014"])
		assert.Equal(t, int64(0), counts["2015_2019"])

		var total int64
		for _, n := range counts {
			total += n
		}
		assert.Equal(t, int64(3), total)

		// Other symbols in shared partitions survive
		remaining, err := testDB.QueryPrices("TCS", day(2024, 1, 1), day(2024, 1, 31), 0)
		require.NoError(t, err)
		assert.Len(t, remaining, 1)
	})
}
