package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantrail/price-sync/internal/models"
)

// seriesPayload covers both response shapes of the historical-series
// endpoint: a list of per-day candle objects, or one object holding
// parallel column arrays aligned by index. The populated field is the
// shape discriminator.
type seriesPayload struct {
	Candles []json.RawMessage `json:"candles"`

	Timestamp []*json.Number `json:"timestamp"`
	Open      []*float64     `json:"open"`
	High      []*float64     `json:"high"`
	Low       []*float64     `json:"low"`
	Close     []*float64     `json:"close"`
	Volume    []*float64     `json:"volume"`
	Value     []*float64     `json:"value"`
}

// candleRow is one per-day object in the list shape. Optional fields
// are pointers so nulls default to zero instead of aborting the record.
type candleRow struct {
	Timestamp *json.Number `json:"timestamp"`
	Open      *float64     `json:"open"`
	High      *float64     `json:"high"`
	Low       *float64     `json:"low"`
	Close     *float64     `json:"close"`
	Volume    *float64     `json:"volume"`
	Value     *float64     `json:"value"`
}

// FetchHistoricalSeries fetches daily OHLCV history for one reference
// code over an inclusive date window and normalizes whichever response
// shape the source answered with into price records. Unparseable rows
// are dropped with a warning, never fatal.
func (c *Client) FetchHistoricalSeries(ctx context.Context, code, symbol string, start, end time.Time) ([]*models.PriceRecord, error) {
	q := url.Values{}
	q.Set("code", code)
	q.Set("from", start.Format("2006-01-02"))
	q.Set("to", end.Format("2006-01-02"))
	q.Set("interval", "day")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/historical?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build historical request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch historical series for %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("historical series request for %s returned status %d", code, resp.StatusCode)
	}

	var envelope struct {
		Data seriesPayload `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode historical series for %s: %w", code, err)
	}

	if len(envelope.Data.Candles) > 0 {
		return c.normalizeList(code, symbol, envelope.Data.Candles), nil
	}
	return c.normalizeColumns(code, symbol, &envelope.Data), nil
}

func (c *Client) normalizeList(code, symbol string, candles []json.RawMessage) []*models.PriceRecord {
	var records []*models.PriceRecord
	for i, raw := range candles {
		var row candleRow
		if err := json.Unmarshal(raw, &row); err != nil {
			c.logger.WithFields(logrus.Fields{
				"code":  code,
				"index": i,
			}).Warn("dropping unparseable candle")
			continue
		}

		date, ok := parseTimestamp(row.Timestamp)
		if !ok {
			c.logger.WithFields(logrus.Fields{
				"code":  code,
				"index": i,
			}).Warn("dropping candle without usable timestamp")
			continue
		}

		records = append(records, &models.PriceRecord{
			RefCode:     code,
			Symbol:      symbol,
			Date:        date,
			Open:        decimalOrZero(row.Open),
			High:        decimalOrZero(row.High),
			Low:         decimalOrZero(row.Low),
			Close:       decimalOrZero(row.Close),
			Volume:      int64OrZero(row.Volume),
			TradedValue: decimalOrZero(row.Value),
		})
	}
	return records
}

func (c *Client) normalizeColumns(code, symbol string, p *seriesPayload) []*models.PriceRecord {
	var records []*models.PriceRecord
	for i, ts := range p.Timestamp {
		date, ok := parseTimestamp(ts)
		if !ok {
			c.logger.WithFields(logrus.Fields{
				"code":  code,
				"index": i,
			}).Warn("dropping column row without usable timestamp")
			continue
		}

		records = append(records, &models.PriceRecord{
			RefCode:     code,
			Symbol:      symbol,
			Date:        date,
			Open:        decimalOrZero(columnAt(p.Open, i)),
			High:        decimalOrZero(columnAt(p.High, i)),
			Low:         decimalOrZero(columnAt(p.Low, i)),
			Close:       decimalOrZero(columnAt(p.Close, i)),
			Volume:      int64OrZero(columnAt(p.Volume, i)),
			TradedValue: decimalOrZero(columnAt(p.Value, i)),
		})
	}
	return records
}

// parseTimestamp converts a Unix timestamp to a UTC calendar date.
// Values above 1e12 are milliseconds, everything else seconds.
func parseTimestamp(n *json.Number) (time.Time, bool) {
	if n == nil {
		return time.Time{}, false
	}
	v, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return time.Time{}, false
		}
		v = int64(f)
	}
	if v <= 0 {
		return time.Time{}, false
	}
	if v > 1e12 {
		v /= 1000
	}
	t := time.Unix(v, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

func columnAt(col []*float64, i int) *float64 {
	if i >= len(col) {
		return nil
	}
	return col[i]
}

func decimalOrZero(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

func int64OrZero(v *float64) int64 {
	if v == nil {
		return 0
	}
	return int64(*v)
}
