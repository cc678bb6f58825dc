package slots

import (
	"fmt"
	"strconv"
	"time"

	"menza/internal/apperr"
)

const (
	// DateLayout is the wire format for calendar dates.
	DateLayout = "2006-01-02"

	minutesPerDay = 24 * 60
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay int

// String formats the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Add returns t shifted by m minutes. Reservations never cross midnight, so no wrapping.
func (t TimeOfDay) Add(m int) TimeOfDay {
	return t + TimeOfDay(m)
}

// Minute returns the minute component.
func (t TimeOfDay) Minute() int {
	return int(t) % 60
}

// ParseTimeOfDay parses a strict "HH:MM" 24-hour time.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, apperr.Newf(apperr.InvalidFormat, "invalid time format %q; expected HH:MM", s)
	}

	hour, err := parseDigits(s[:2])
	if err != nil || hour > 23 {
		return 0, apperr.Newf(apperr.InvalidFormat, "invalid hour in %q", s)
	}

	minute, err := parseDigits(s[3:])
	if err != nil || minute > 59 {
		return 0, apperr.Newf(apperr.InvalidFormat, "invalid minute in %q", s)
	}

	return TimeOfDay(hour*60 + minute), nil
}

func parseDigits(s string) (int, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a digit: %q", r)
		}
	}
	return strconv.Atoi(s)
}

// ParseDate parses a strict "YYYY-MM-DD" date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.InvalidFormat, "invalid date format %q; expected YYYY-MM-DD", s)
	}
	return d, nil
}

// FormatDate formats a date as "YYYY-MM-DD".
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// DateOf returns the calendar day of t (in t's location) as midnight UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Overlaps reports whether half-open intervals [startA, endA) and [startB, endB) intersect.
// Touching endpoints do not overlap.
func Overlaps(startA, endA, startB, endB TimeOfDay) bool {
	return startA < endB && startB < endA
}

// Contains reports whether [start, end) lies within [outerStart, outerEnd).
func Contains(outerStart, outerEnd, start, end TimeOfDay) bool {
	return outerStart <= start && end <= outerEnd
}

// ValidDuration reports whether d is a bookable reservation length.
func ValidDuration(d int) bool {
	return d == 30 || d == 60
}

// IsAligned reports whether t starts on the hour or half-hour.
func IsAligned(t TimeOfDay) bool {
	m := t.Minute()
	return m == 0 || m == 30
}
