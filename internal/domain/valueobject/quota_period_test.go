package valueobject

import (
	"testing"
	"time"
)

func TestQuotaPeriod_StartOf(t *testing.T) {
	testCases := []struct {
		name     string
		period   QuotaPeriod
		input    time.Time
		expected time.Time
	}{
		{
			name:     "daily mid-day",
			period:   QuotaPeriodDaily,
			input:    time.Date(2025, 3, 15, 13, 45, 12, 0, time.UTC),
			expected: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "daily at exact midnight",
			period:   QuotaPeriodDaily,
			input:    time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "daily converts non-UTC zones",
			period:   QuotaPeriodDaily,
			input:    time.Date(2025, 3, 15, 1, 30, 0, 0, time.FixedZone("UTC+3", 3*3600)),
			expected: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly mid-month",
			period:   QuotaPeriodMonthly,
			input:    time.Date(2025, 3, 15, 13, 45, 12, 0, time.UTC),
			expected: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly on the first",
			period:   QuotaPeriodMonthly,
			input:    time.Date(2025, 3, 1, 0, 0, 0, 1, time.UTC),
			expected: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly december",
			period:   QuotaPeriodMonthly,
			input:    time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
			expected: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.period.StartOf(tc.input)
			if !got.Equal(tc.expected) {
				t.Errorf("StartOf(%v) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestQuotaPeriod_Contains(t *testing.T) {
	dayStart := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	if !QuotaPeriodDaily.Contains(dayStart, time.Date(2025, 3, 15, 23, 59, 59, 0, time.UTC)) {
		t.Error("expected end of day to be contained in the same daily period")
	}
	if QuotaPeriodDaily.Contains(dayStart, time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected next midnight to fall outside the previous daily period")
	}

	monthStart := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if !QuotaPeriodMonthly.Contains(monthStart, time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)) {
		t.Error("expected end of february to be contained in the same monthly period")
	}
	if QuotaPeriodMonthly.Contains(monthStart, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected march to fall outside the february period")
	}
}

func TestNewQuotaPeriod(t *testing.T) {
	for _, valid := range []string{"daily", "monthly"} {
		if _, err := NewQuotaPeriod(valid); err != nil {
			t.Errorf("expected %q to be a valid period, got error: %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "weekly", "DAILY", "hourly"} {
		if _, err := NewQuotaPeriod(invalid); err == nil {
			t.Errorf("expected %q to be rejected", invalid)
		}
	}
}
