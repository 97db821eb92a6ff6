package presence

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Closed time interval for range queries and reporting
// =============================================================================

// Period is a closed interval [Start, End]. Monthly reports always use
// full calendar months in the agent's local calendar.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within the period [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

// MonthPeriod returns the calendar month as a closed interval: first
// instant of the first day through the last instant of the last day,
// in loc (UTC when nil).
func MonthPeriod(year int, month time.Month, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return Period{Start: start, End: end}
}

// ParseYearMonth parses "YYYY-MM" (e.g. "2025-03").
func ParseYearMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid year-month %q (want YYYY-MM): %w", s, err)
	}
	return t.Year(), t.Month(), nil
}

// DayOf buckets a timestamp to its calendar date in loc (UTC when nil).
// Presence records and worked-day counts key on this bucket.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
