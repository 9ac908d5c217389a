package timecalc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func mustClock(t *testing.T, s string) TimeOfDay {
	t.Helper()
	c, err := ParseTimeOfDay(s)
	require.NoError(t, err)
	return c
}

func TestNightsBetween(t *testing.T) {
	cases := []struct {
		start, end string
		want       int
	}{
		{"2025-09-01", "2025-09-01", 1},
		{"2025-09-01", "2025-09-02", 1},
		{"2025-09-01", "2025-09-03", 2},
		{"2025-09-01", "2025-10-01", 30},
		{"2025-02-28", "2025-03-01", 1},
		{"2025-09-03", "2025-09-01", 1},
	}
	for _, tc := range cases {
		got := NightsBetween(mustDate(t, tc.start), mustDate(t, tc.end))
		assert.Equal(t, tc.want, got, "%s..%s", tc.start, tc.end)
	}
}

func TestNightsBetween_IgnoresTimeOfDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := time.Date(2025, 3, 8, 23, 0, 0, 0, loc)
	end := time.Date(2025, 3, 10, 1, 0, 0, 0, loc)
	assert.Equal(t, 2, NightsBetween(start, end))
}

func TestHoursBetween(t *testing.T) {
	cases := []struct {
		startDate, startTime, endDate, endTime string
		want                                   float64
	}{
		{"2025-01-01", "09:00", "2025-01-01", "09:10", 0.25},
		{"2025-01-01", "09:00", "2025-01-01", "09:15", 0.25},
		{"2025-01-01", "09:00", "2025-01-01", "09:16", 0.5},
		{"2025-01-01", "09:00", "2025-01-01", "11:30", 2.5},
		{"2025-01-01", "22:00", "2025-01-02", "02:00", 4},
		{"2025-01-01", "09:00", "2025-01-01", "09:00", 0},
		{"2025-01-01", "10:00", "2025-01-01", "09:00", 0},
		{"2025-01-02", "09:00", "2025-01-01", "17:00", 0},
	}
	for _, tc := range cases {
		got := HoursBetween(mustDate(t, tc.startDate), mustClock(t, tc.startTime), mustDate(t, tc.endDate), mustClock(t, tc.endTime))
		assert.Equal(t, tc.want, got, "%s %s -> %s %s", tc.startDate, tc.startTime, tc.endDate, tc.endTime)
	}
}

func TestHoursBetween_MonotonicAndQuarterAligned(t *testing.T) {
	day := mustDate(t, "2025-01-01")
	start := mustClock(t, "08:00")
	prev := 0.0
	for end := TimeOfDay(0); end < 24*60; end++ {
		got := HoursBetween(day, start, day, end)
		require.GreaterOrEqual(t, got, prev, "end=%s", end)
		require.Zero(t, got*4-float64(int(got*4)), "not a quarter step: %v", got)
		if got > 0 {
			require.GreaterOrEqual(t, got, float64(end-start)/60)
		}
		prev = got
	}
}

func TestParseTimeOfDay(t *testing.T) {
	c, err := ParseTimeOfDay("07:45")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(465), c)
	assert.Equal(t, "07:45", c.String())

	_, err = ParseTimeOfDay("7pm")
	assert.Error(t, err)
	_, err = ParseDate("2025-13-01")
	assert.Error(t, err)
}

func TestAt(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Lisbon")
	require.NoError(t, err)
	got := At(mustDate(t, "2025-07-01"), mustClock(t, "09:30"), loc)
	assert.Equal(t, time.Date(2025, 7, 1, 9, 30, 0, 0, loc), got)
	assert.Equal(t, time.UTC, At(mustDate(t, "2025-07-01"), 0, nil).Location())
}
