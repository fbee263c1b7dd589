package localtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jakarta(t *testing.T) *Localizer {
	t.Helper()
	l, err := New(7, []int{6, 7, 8, 9, 16, 17, 18, 19})
	require.NoError(t, err)
	return l
}

func TestNew_RejectsInvalidSettings(t *testing.T) {
	_, err := New(15, nil)
	assert.Error(t, err)

	_, err = New(-13, nil)
	assert.Error(t, err)

	_, err = New(7, []int{24})
	assert.Error(t, err)
}

func TestDateHour_CrossesMidnightBoundary(t *testing.T) {
	l := jakarta(t)

	// 06:00 UTC is 13:00 local, same calendar day.
	date, hour := l.DateHour(time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-01-01", date)
	assert.Equal(t, 13, hour)

	// 18:30 UTC is 01:30 local the next day.
	date, hour = l.DateHour(time.Date(2025, 1, 1, 18, 30, 0, 0, time.UTC))
	assert.Equal(t, "2025-01-02", date)
	assert.Equal(t, 1, hour)
}

func TestIsPeakHour_MorningAndEveningEdges(t *testing.T) {
	l := jakarta(t)

	cases := []struct {
		localHour int
		want      bool
	}{
		{5, false},
		{6, true},
		{9, true},
		{10, false},
		{15, false},
		{16, true},
		{19, true},
		{20, false},
	}

	for _, tc := range cases {
		// Build a UTC instant whose local hour is tc.localHour.
		utcHour := (tc.localHour - 7 + 24) % 24
		instant := time.Date(2025, 1, 1, utcHour, 30, 0, 0, time.UTC)
		assert.Equal(t, tc.want, l.IsPeakHour(instant), "local hour %d", tc.localHour)
		assert.Equal(t, tc.want, l.IsPeakClockHour(tc.localHour), "clock hour %d", tc.localHour)
	}
}

func TestIsPeakClockHour_OutOfRangeIsFalse(t *testing.T) {
	l := jakarta(t)

	assert.False(t, l.IsPeakClockHour(-1))
	assert.False(t, l.IsPeakClockHour(24))
}

func TestHourStart_InvertsDateHour(t *testing.T) {
	l := jakarta(t)

	start, err := l.HourStart("2025-01-02", 1)
	require.NoError(t, err)
	// 01:00 local on Jan 2 is 18:00 UTC on Jan 1.
	assert.Equal(t, time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC), start)

	date, hour := l.DateHour(start)
	assert.Equal(t, "2025-01-02", date)
	assert.Equal(t, 1, hour)

	_, err = l.HourStart("02-01-2025", 1)
	assert.Error(t, err)
}

func TestPreviousHourWindow_HalfOpenBounds(t *testing.T) {
	l := jakarta(t)

	// 06:15 UTC is 13:15 local; the previous completed hour is local 12.
	date, hour, from, to := l.PreviousHourWindow(time.Date(2025, 1, 1, 6, 15, 0, 0, time.UTC))

	assert.Equal(t, "2025-01-01", date)
	assert.Equal(t, 12, hour)
	assert.Equal(t, time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC), to)
	assert.Equal(t, time.Hour, to.Sub(from))
}

func TestPreviousHourWindow_FirstLocalHourOfDay(t *testing.T) {
	l := jakarta(t)

	// 17:30 UTC is 00:30 local the next day; the previous hour is 23 of
	// the prior local date.
	date, hour, from, to := l.PreviousHourWindow(time.Date(2025, 1, 1, 17, 30, 0, 0, time.UTC))

	assert.Equal(t, "2025-01-01", date)
	assert.Equal(t, 23, hour)
	assert.Equal(t, time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 1, 1, 17, 0, 0, 0, time.UTC), to)
}

func TestPreviousDayWindow_CoversLocalCalendarDay(t *testing.T) {
	l := jakarta(t)

	// 02:00 local on Jan 2 (19:00 UTC Jan 1): the previous local day is
	// Jan 1, spanning 17:00 UTC Dec 31 to 17:00 UTC Jan 1.
	date, from, to := l.PreviousDayWindow(time.Date(2025, 1, 1, 19, 0, 0, 0, time.UTC))

	assert.Equal(t, "2025-01-01", date)
	assert.Equal(t, time.Date(2024, 12, 31, 17, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 1, 1, 17, 0, 0, 0, time.UTC), to)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
}
