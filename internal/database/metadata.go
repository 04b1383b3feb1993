package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/quantrail/price-sync/internal/models"
)

// UpsertStockMetadata records last-sync bookkeeping for a symbol
func (db *DB) UpsertStockMetadata(m *models.StockMetadata) error {
	query := `
		INSERT INTO stock_metadata (symbol, last_sync_at, last_sync_records, last_sync_status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE SET
			last_sync_at = EXCLUDED.last_sync_at,
			last_sync_records = EXCLUDED.last_sync_records,
			last_sync_status = EXCLUDED.last_sync_status,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	_, err := db.conn.Exec(query, m.Symbol, m.LastSyncAt, m.LastSyncRecords, m.LastSyncStatus, now)
	if err != nil {
		return fmt.Errorf("failed to upsert stock metadata: %w", err)
	}
	m.UpdatedAt = now
	return nil
}

// GetStockMetadata retrieves last-sync bookkeeping for a symbol
func (db *DB) GetStockMetadata(symbol string) (*models.StockMetadata, error) {
	query := `
		SELECT symbol, last_sync_at, last_sync_records, last_sync_status, updated_at
		FROM stock_metadata
		WHERE symbol = $1
	`
	var m models.StockMetadata
	err := db.conn.QueryRow(query, symbol).Scan(
		&m.Symbol, &m.LastSyncAt, &m.LastSyncRecords, &m.LastSyncStatus, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stock metadata not found: %s", symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock metadata: %w", err)
	}
	return &m, nil
}

// DeleteStockMetadata removes the bookkeeping row for a symbol
func (db *DB) DeleteStockMetadata(symbol string) error {
	query := `DELETE FROM stock_metadata WHERE symbol = $1`
	if _, err := db.conn.Exec(query, symbol); err != nil {
		return fmt.Errorf("failed to delete stock metadata for %s: %w", symbol, err)
	}
	return nil
}
