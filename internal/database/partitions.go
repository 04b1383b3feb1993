package database

import (
	"fmt"
	"time"
)

const (
	// EarliestYear is the first year the store supports; no source data
	// exists before it.
	EarliestYear = 2005

	partitionSpan = 5
)

// PartitionFor returns the partition name for a calendar year.
// Partitions cover contiguous 5-year spans aligned to multiples of 5,
// clamped at EarliestYear: 2009 -> "2005_2009", 2024 -> "2020_2024".
func PartitionFor(year int) string {
	start := (year / partitionSpan) * partitionSpan
	if start < EarliestYear {
		start = EarliestYear
	}
	return fmt.Sprintf("%d_%d", start, start+partitionSpan-1)
}

// partitionTable returns the table name backing a partition
func partitionTable(name string) string {
	return "prices_" + name
}

// partitionsForRange returns the distinct partition names covering the
// inclusive date range, in chronological order.
func partitionsForRange(start, end time.Time) []string {
	var names []string
	seen := make(map[string]bool)
	for year := start.Year(); year <= end.Year(); year++ {
		name := PartitionFor(year)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// allPartitions returns every plausible partition name from EarliestYear
// through the current year. Used when existence cannot be inferred from
// a date range, e.g. for symbol deletion.
func allPartitions(now time.Time) []string {
	var names []string
	seen := make(map[string]bool)
	for year := EarliestYear; year <= now.Year(); year++ {
		name := PartitionFor(year)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// ensurePartition creates the partition table if it does not exist yet
func (db *DB) ensurePartition(name string) error {
	table := partitionTable(name)
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			ref_code     TEXT        NOT NULL,
			symbol       TEXT        NOT NULL,
			date         DATE        NOT NULL,
			open         NUMERIC(14,2),
			high         NUMERIC(14,2),
			low          NUMERIC(14,2),
			close        NUMERIC(14,2),
			volume       BIGINT,
			traded_value NUMERIC(18,2),
			updated_at   TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (ref_code, date)
		)`, table)
	if _, err := db.conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", name, err)
	}

	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_symbol_date ON %s (symbol, date)`, table, table)
	if _, err := db.conn.Exec(idx); err != nil {
		return fmt.Errorf("failed to index partition %s: %w", name, err)
	}
	return nil
}
