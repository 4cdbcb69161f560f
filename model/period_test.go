package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_Range(t *testing.T) {
	// A Wednesday.
	now := time.Date(2026, 8, 26, 15, 42, 10, 0, time.UTC)

	tests := []struct {
		period Period
		start  time.Time
		end    time.Time
	}{
		{PeriodDaily, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)},
		{PeriodWeekly, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)},
		{PeriodMonthly, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodYearly, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			start, end := tt.period.Range(now)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestPeriod_Range_SundayBelongsToCurrentWeek(t *testing.T) {
	sunday := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)

	start, end := PeriodWeekly.Range(sunday)

	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), end)
}

func TestParsePeriod(t *testing.T) {
	for _, p := range Periods() {
		got, err := ParsePeriod(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParsePeriod("fortnightly")
	assert.Error(t, err)
}

func TestNewLocalID(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	id := NewLocalID(now)
	other := NewLocalID(now)

	assert.True(t, IsLocalID(id))
	assert.NotEqual(t, id, other, "two ids generated at the same instant must differ")
	assert.False(t, IsLocalID("srv_9"))
	assert.True(t, Item{ID: id}.IsLocal())
}

func TestAnalysisFromItems(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	items := []Item{
		{ID: "a", Amount: 10, Category: "dining"},
		{ID: "b", Amount: 5, Category: "dining"},
		{ID: "c", Amount: 20, Category: "transport"},
		{ID: "d", Amount: 3},
	}

	a := AnalysisFromItems("2026-08", items, now)

	assert.Equal(t, "2026-08", a.Month)
	assert.Equal(t, float64(38), a.TotalSpent)
	assert.Equal(t, float64(15), a.Categories["dining"])
	assert.Equal(t, float64(20), a.Categories["transport"])
	assert.NotContains(t, a.Categories, "")
}
