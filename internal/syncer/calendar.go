package syncer

import (
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar estimates trading days for ShouldSync's cheap
// pre-check. It wraps an exchange calendar resolved by MIC code
// (ISO 10383) and falls back to plain Mon-Fri counting when the MIC is
// unknown.
type TradingCalendar struct {
	cal      *calendar.Calendar
	fallback bool
}

// NewTradingCalendar resolves a calendar for the given MIC
func NewTradingCalendar(mic string) *TradingCalendar {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		return &TradingCalendar{fallback: true}
	}
	return &TradingCalendar{cal: cal}
}

// IsTradingDay reports whether the exchange trades on the given date
func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.fallback {
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return tc.cal.IsBusinessDay(date)
}

// BusinessDays counts expected trading days in the inclusive range
func (tc *TradingCalendar) BusinessDays(start, end time.Time) int {
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if tc.IsTradingDay(d) {
			count++
		}
	}
	return count
}
