// Package timecalc converts calendar dates and times of day into night counts
// and quarter-hour rounded durations.
package timecalc

import (
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	// RoundingStep is the granularity billed durations are rounded up to.
	RoundingStep = 15 * time.Minute
)

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse date %q", s)
	}
	return t, nil
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse time of day %q", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// NightsBetween counts calendar nights between two dates, never less than one.
// Any time-of-day component of the arguments is ignored.
func NightsBetween(start, end time.Time) int {
	days := math.Ceil(civilDay(end).Sub(civilDay(start)).Hours() / 24)
	if days < 1 {
		return 1
	}
	return int(days)
}

// HoursBetween returns the elapsed wall-clock hours between two (date, time)
// pairs rounded up to the next RoundingStep. It returns 0 when the end is not
// after the start; callers must treat 0 as not orderable.
func HoursBetween(startDate time.Time, startTime TimeOfDay, endDate time.Time, endTime TimeOfDay) float64 {
	start := civilDay(startDate).Add(startTime.Duration())
	end := civilDay(endDate).Add(endTime.Duration())
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	steps := (elapsed + RoundingStep - 1) / RoundingStep
	return float64(steps) * RoundingStep.Hours()
}

// At places a calendar date and time of day in loc.
func At(date time.Time, tod TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, int(tod)/60, int(tod)%60, 0, 0, loc)
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
