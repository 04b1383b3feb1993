package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord represents one day of OHLCV data for a reference code.
// The pair (RefCode, Date) is unique within its partition.
type PriceRecord struct {
	RefCode     string          `json:"ref_code"`
	Symbol      string          `json:"symbol"`
	Date        time.Time       `json:"date"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      int64           `json:"volume"`
	TradedValue decimal.Decimal `json:"traded_value,omitempty"`
	Partition   string          `json:"partition,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
}

// DateKey returns the calendar-date key used for gap reconciliation
func (p *PriceRecord) DateKey() string {
	return p.Date.Format("2006-01-02")
}
