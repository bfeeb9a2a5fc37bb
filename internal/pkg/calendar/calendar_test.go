package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadZone("")
	require.NoError(t, err)
	return loc
}

func TestSecondsUntilNextBoundary(t *testing.T) {
	loc := saoPaulo(t)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"late evening local", time.Date(2025, 3, 10, 22, 30, 0, 0, loc), 90 * 60},
		{"already next day in UTC", time.Date(2025, 3, 11, 1, 30, 0, 0, time.UTC), 90 * 60},
		{"just after midnight", time.Date(2025, 3, 11, 0, 0, 1, 0, loc), 24*60*60 - 1},
		{"sub-second remainder rounds up", time.Date(2025, 3, 10, 23, 59, 59, 500_000_000, loc), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SecondsUntilNextBoundary(tt.now, loc))
		})
	}
}

func TestSecondsUntilNextMonth(t *testing.T) {
	loc := saoPaulo(t)
	now := time.Date(2025, 1, 31, 23, 0, 0, 0, loc)
	assert.Equal(t, 3600, SecondsUntilNextMonth(now, loc))
}

func TestDayUsesReferenceZone(t *testing.T) {
	loc := saoPaulo(t)
	// 02:00 UTC on the 11th is still the 10th in Sao Paulo.
	now := time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC)

	assert.Equal(t, "2025-03-10", DayKey(Day(now, loc)))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Month(now, loc))
}

func TestLoadZoneUnknown(t *testing.T) {
	_, err := LoadZone("Nowhere/Atlantis")
	assert.Error(t, err)
}

func TestDaysAndMonthsAreInclusiveAndAscending(t *testing.T) {
	from := time.Date(2025, 2, 27, 15, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	days := Days(from, to)
	require.Len(t, days, 4)
	assert.Equal(t, "2025-02-27", DayKey(days[0]))
	assert.Equal(t, "2025-03-02", DayKey(days[3]))

	months := Months(time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, months, 4)
	assert.Equal(t, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), months[0])
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), months[3])

	assert.Empty(t, Days(to, from))
}
