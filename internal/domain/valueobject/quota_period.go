package valueobject

import (
	"fmt"
	"time"
)

// QuotaPeriod is a quota accounting window. Periods are UTC calendar
// aligned: a daily period starts at midnight UTC, a monthly period at
// midnight UTC on the first of the month.
type QuotaPeriod string

// Quota period constants.
const (
	QuotaPeriodDaily   QuotaPeriod = "daily"
	QuotaPeriodMonthly QuotaPeriod = "monthly"
)

var validQuotaPeriods = map[QuotaPeriod]bool{
	QuotaPeriodDaily:   true,
	QuotaPeriodMonthly: true,
}

// NewQuotaPeriod creates a new QuotaPeriod with validation.
func NewQuotaPeriod(period string) (QuotaPeriod, error) {
	p := QuotaPeriod(period)
	if !validQuotaPeriods[p] {
		return "", fmt.Errorf("invalid quota period: %s", period)
	}
	return p, nil
}

// String returns the string representation of the period.
func (p QuotaPeriod) String() string {
	return string(p)
}

// StartOf returns the start of the period containing t, in UTC.
func (p QuotaPeriod) StartOf(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case QuotaPeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Contains returns true if t falls inside the period that starts at start.
func (p QuotaPeriod) Contains(start, t time.Time) bool {
	return p.StartOf(t).Equal(start.UTC())
}
