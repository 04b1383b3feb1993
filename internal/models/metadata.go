package models

import "time"

// StockMetadata holds per-symbol last-sync bookkeeping for dashboards
type StockMetadata struct {
	Symbol          string    `json:"symbol"`
	LastSyncAt      time.Time `json:"last_sync_at"`
	LastSyncRecords int       `json:"last_sync_records"`
	LastSyncStatus  string    `json:"last_sync_status"` // "completed", "failed", "skipped"
	UpdatedAt       time.Time `json:"updated_at"`
}
