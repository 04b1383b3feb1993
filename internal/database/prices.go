package database

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/quantrail/price-sync/internal/models"
)

// UpsertResult reports the outcome of a bulk price upsert
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

// isUndefinedTable reports whether err is Postgres 42P01. A partition
// that was never written to has no table and is treated as empty.
func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	return false
}

// UpsertPrices writes price records grouped by partition with
// replace-on-conflict semantics keyed by (ref_code, date). A failure in
// one partition is counted and does not block writes to other
// partitions; row failures are likewise counted, never raised.
func (db *DB) UpsertPrices(records []*models.PriceRecord) UpsertResult {
	var result UpsertResult

	batches := make(map[string][]*models.PriceRecord)
	var order []string
	for _, r := range records {
		name := PartitionFor(r.Date.Year())
		if _, ok := batches[name]; !ok {
			order = append(order, name)
		}
		batches[name] = append(batches[name], r)
	}

	for _, name := range order {
		batch := batches[name]
		if err := db.ensurePartition(name); err != nil {
			result.Errors += len(batch)
			continue
		}

		query := fmt.Sprintf(`
			INSERT INTO %s (ref_code, symbol, date, open, high, low, close, volume, traded_value, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (ref_code, date) DO UPDATE SET
				symbol = EXCLUDED.symbol,
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				volume = EXCLUDED.volume,
				traded_value = EXCLUDED.traded_value,
				updated_at = EXCLUDED.updated_at
			RETURNING (xmax = 0) AS inserted
		`, partitionTable(name))

		stmt, err := db.conn.Prepare(query)
		if err != nil {
			result.Errors += len(batch)
			continue
		}

		now := time.Now()
		for _, r := range batch {
			var inserted bool
			err := stmt.QueryRow(
				r.RefCode, r.Symbol, r.Date, r.Open, r.High, r.Low, r.Close,
				r.Volume, r.TradedValue, now,
			).Scan(&inserted)
			if err != nil {
				result.Errors++
				continue
			}
			if inserted {
				result.Inserted++
			} else {
				result.Updated++
			}
		}
		stmt.Close()
	}

	return result
}

// QueryPrices retrieves price records for a symbol within an inclusive
// date range, merged across all covering partitions, de-duplicated by
// (ref_code, date) and sorted by date ascending. A limit of 0 means
// unbounded.
func (db *DB) QueryPrices(symbol string, start, end time.Time, limit int) ([]*models.PriceRecord, error) {
	var merged []*models.PriceRecord
	seen := make(map[string]bool)

	for _, name := range partitionsForRange(start, end) {
		query := fmt.Sprintf(`
			SELECT ref_code, symbol, date, open, high, low, close, volume, traded_value, updated_at
			FROM %s
			WHERE symbol = $1 AND date >= $2 AND date <= $3
			ORDER BY date ASC
		`, partitionTable(name))

		rows, err := db.conn.Query(query, symbol, start, end)
		if err != nil {
			if isUndefinedTable(err) {
				continue
			}
			return nil, fmt.Errorf("failed to query partition %s: %w", name, err)
		}

		for rows.Next() {
			var r models.PriceRecord
			err := rows.Scan(
				&r.RefCode, &r.Symbol, &r.Date, &r.Open, &r.High, &r.Low, &r.Close,
				&r.Volume, &r.TradedValue, &r.UpdatedAt,
			)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan price record: %w", err)
			}
			key := r.RefCode + "|" + r.DateKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			r.Partition = name
			merged = append(merged, &r)
		}
		rows.Close()
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// CountPrices returns the number of stored records for a symbol within
// an inclusive date range. Missing partitions count as zero.
func (db *DB) CountPrices(symbol string, start, end time.Time) (int, error) {
	total := 0
	for _, name := range partitionsForRange(start, end) {
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE symbol = $1 AND date >= $2 AND date <= $3`, partitionTable(name))

		var count int
		err := db.conn.QueryRow(query, symbol, start, end).Scan(&count)
		if err != nil {
			if isUndefinedTable(err) {
				continue
			}
			return 0, fmt.Errorf("failed to count partition %s: %w", name, err)
		}
		total += count
	}
	return total, nil
}

// DeleteSymbolPrices removes all price records for a symbol and returns
// per-partition deletion counts. Every plausible partition from
// EarliestYear through the current year is probed because partition
// existence is not tracked; an absent partition contributes zero.
func (db *DB) DeleteSymbolPrices(symbol string) map[string]int64 {
	counts := make(map[string]int64)
	for _, name := range allPartitions(time.Now()) {
		query := fmt.Sprintf(`DELETE FROM %s WHERE symbol = $1`, partitionTable(name))

		result, err := db.conn.Exec(query, symbol)
		if err != nil {
			counts[name] = 0
			continue
		}
		n, _ := result.RowsAffected()
		counts[name] = n
	}
	return counts
}
