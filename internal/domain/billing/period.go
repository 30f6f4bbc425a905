package billing

import (
	"fmt"
	"time"
)

// PeriodLayout is the time layout of a usage period key
const PeriodLayout = "2006-01"

// PeriodKey returns the calendar-month bucket ("2025-01") for an event at t.
// The key is derived in UTC so every node agrees on month boundaries.
func PeriodKey(t time.Time) string {
	return t.UTC().Format(PeriodLayout)
}

// ParsePeriod parses a period key and returns the first instant of that month (UTC)
func ParsePeriod(period string) (time.Time, error) {
	t, err := time.ParseInLocation(PeriodLayout, period, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q: %w", period, err)
	}
	return t, nil
}

// PeriodBounds returns the half-open interval [start, end) of the period containing t
func PeriodBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
