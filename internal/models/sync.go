package models

import "time"

// SyncResult reports the outcome of syncing a single symbol
type SyncResult struct {
	Symbol   string `json:"symbol"`
	Skipped  bool   `json:"skipped"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Errors   int    `json:"errors"`
}

// SyncBatchResult aggregates per-symbol outcomes of one batch invocation.
// Success + Failed always equals Total.
type SyncBatchResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Total   int      `json:"total"`
	Errors  []string `json:"errors,omitempty"`
}

// SyncEvent represents a Kafka event emitted by the orchestrator
type SyncEvent struct {
	EventType string      `json:"event_type"`
	Symbol    string      `json:"symbol,omitempty"`
	Result    *SyncResult `json:"result,omitempty"`
	Count     int         `json:"count,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
