package slots

import "menza/internal/model"

// Interval returns the half-open interval a reservation occupies.
func Interval(r model.Reservation) (start, end TimeOfDay, err error) {
	start, err = ParseTimeOfDay(r.Time)
	if err != nil {
		return 0, 0, err
	}
	return start, start.Add(r.Duration), nil
}

// CountOverlapping counts reservations whose interval overlaps [start, end).
// The caller is responsible for passing only active reservations of one canteen and date.
// Rows with an unparseable time are skipped; admission never writes such rows.
func CountOverlapping(active []model.Reservation, start, end TimeOfDay) int {
	count := 0
	for _, r := range active {
		rs, re, err := Interval(r)
		if err != nil {
			continue
		}
		if Overlaps(rs, re, start, end) {
			count++
		}
	}
	return count
}

// AnyOverlapping reports whether any reservation overlaps [start, end).
func AnyOverlapping(active []model.Reservation, start, end TimeOfDay) bool {
	for _, r := range active {
		rs, re, err := Interval(r)
		if err != nil {
			continue
		}
		if Overlaps(rs, re, start, end) {
			return true
		}
	}
	return false
}
