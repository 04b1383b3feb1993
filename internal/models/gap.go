package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GapReport is the result of reconciling local storage against the
// source's trading calendar for one symbol. It is computed fresh on
// every analysis; a cached copy may be kept as a snapshot only.
type GapReport struct {
	Symbol        string          `json:"symbol"`
	HasData       bool            `json:"has_data"`
	RecordCount   int             `json:"record_count"`
	SourceCount   int             `json:"source_count"`
	FirstDate     *time.Time      `json:"first_date,omitempty"`
	LastDate      *time.Time      `json:"last_date,omitempty"`
	FreshnessDays int             `json:"freshness_days"`
	CoveragePct   float64         `json:"coverage_pct"`
	LastPrice     decimal.Decimal `json:"last_price,omitempty"`
	NeedsUpdate   bool            `json:"needs_update"`
	Gaps          []string        `json:"gaps,omitempty"`
	CalculatedAt  time.Time       `json:"calculated_at"`
}
