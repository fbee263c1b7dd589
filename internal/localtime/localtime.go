package localtime

import (
	"fmt"
	"time"
)

// DateLayout is the canonical format for local calendar dates.
const DateLayout = "2006-01-02"

// Localizer converts UTC instants to the pipeline's fixed-offset local
// time. All storage stays in UTC; this is the only place local hours
// are consulted.
type Localizer struct {
	loc  *time.Location
	peak [24]bool
}

// New creates a Localizer for a whole-hour UTC offset and a set of
// local peak hours.
func New(offsetHours int, peakHours []int) (*Localizer, error) {
	if offsetHours < -12 || offsetHours > 14 {
		return nil, fmt.Errorf("invalid local offset %d", offsetHours)
	}
	l := &Localizer{
		loc: time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600),
	}
	for _, h := range peakHours {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid peak hour %d", h)
		}
		l.peak[h] = true
	}
	return l, nil
}

// Location returns the fixed-offset location, for calendar scheduling.
func (l *Localizer) Location() *time.Location {
	return l.loc
}

// DateHour returns the local calendar date and local hour of an instant.
func (l *Localizer) DateHour(t time.Time) (string, int) {
	lt := t.In(l.loc)
	return lt.Format(DateLayout), lt.Hour()
}

// IsPeakHour reports whether an instant falls in a local peak hour.
func (l *Localizer) IsPeakHour(t time.Time) bool {
	_, hour := l.DateHour(t)
	return l.peak[hour]
}

// IsPeakClockHour reports whether a local clock hour is a peak hour.
func (l *Localizer) IsPeakClockHour(hour int) bool {
	if hour < 0 || hour > 23 {
		return false
	}
	return l.peak[hour]
}

// HourStart returns the UTC instant at which a local (date, hour) begins.
func (l *Localizer) HourStart(date string, hour int) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, l.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return d.Add(time.Duration(hour) * time.Hour).UTC(), nil
}

// PreviousHourWindow returns the previous completed local hour as a
// (date, hour) key plus its half-open [from, to) UTC bounds.
func (l *Localizer) PreviousHourWindow(now time.Time) (date string, hour int, from, to time.Time) {
	lt := now.In(l.loc)
	thisHour := time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, l.loc)
	prev := thisHour.Add(-time.Hour)
	return prev.Format(DateLayout), prev.Hour(), prev.UTC(), thisHour.UTC()
}

// PreviousDayWindow returns the previous local calendar day as a date
// key plus its half-open [from, to) UTC bounds.
func (l *Localizer) PreviousDayWindow(now time.Time) (date string, from, to time.Time) {
	lt := now.In(l.loc)
	midnight := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, l.loc)
	start := midnight.AddDate(0, 0, -1)
	return start.Format(DateLayout), start.UTC(), midnight.UTC()
}
