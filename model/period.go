package model

import (
	"fmt"
	"time"
)

// Period selects the calendar window a query covers. The set mirrors the
// periods the backing service accepts.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// Periods lists every valid period, in ascending window size.
func Periods() []Period {
	return []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly}
}

// ParsePeriod validates a raw period string.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
		return Period(s), nil
	}
	return "", fmt.Errorf("invalid period %q", s)
}

// Range returns the half-open [start, end) calendar window the period covers
// relative to now. Weeks start on Monday.
func (p Period) Range(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	loc := now.Location()

	switch p {
	case PeriodWeekly:
		weekday := int(now.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		start := time.Date(y, m, d-(weekday-1), 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	case PeriodYearly:
		start := time.Date(y, 1, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	default: // daily
		start := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1)
	}
}

// MonthKey formats now as the YYYY-MM month identifier analysis snapshots use.
func MonthKey(now time.Time) string {
	return now.Format("2006-01")
}
