package slots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"menza/internal/model"
)

// Slot is a bookable interval on one date with its remaining capacity.
// RemainingCapacity is not clamped: a negative value means the canteen is overbooked.
type Slot struct {
	Date              time.Time
	Meal              string
	Start             TimeOfDay
	RemainingCapacity int
}

// Query bounds an availability computation. Callers validate it before use.
type Query struct {
	DateStart time.Time
	DateEnd   time.Time
	TimeStart TimeOfDay
	TimeEnd   TimeOfDay
	Duration  int // minutes
}

// ReservationSource provides the active reservations of a canteen on a date.
type ReservationSource interface {
	ActiveReservationsByCanteen(ctx context.Context, canteenID int64, date time.Time) ([]model.Reservation, error)
}

// Calculator enumerates bookable slots for canteens.
type Calculator struct {
	source ReservationSource
}

// NewCalculator creates a new availability calculator.
func NewCalculator(source ReservationSource) *Calculator {
	return &Calculator{source: source}
}

// ComputeSlots returns slots grouped by working-hour window, then by date, then by start time.
// Overlapping working-hour windows yield one slot per window for the same clock time.
func (c *Calculator) ComputeSlots(ctx context.Context, canteen model.Canteen, q Query) ([]Slot, error) {
	if q.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", q.Duration)
	}

	// One read per date, shared by every window and candidate on that date.
	byDate := make(map[string][]model.Reservation)
	activeOn := func(date time.Time) ([]model.Reservation, error) {
		key := FormatDate(date)
		if res, ok := byDate[key]; ok {
			return res, nil
		}
		res, err := c.source.ActiveReservationsByCanteen(ctx, canteen.ID, date)
		if err != nil {
			return nil, fmt.Errorf("load reservations for %s: %w", key, err)
		}
		byDate[key] = res
		return res, nil
	}

	var slots []Slot
	for _, wh := range canteen.WorkingHours {
		whStart, err := ParseTimeOfDay(wh.From)
		if err != nil {
			return nil, fmt.Errorf("working hour %d: %w", wh.ID, err)
		}
		whEnd, err := ParseTimeOfDay(wh.To)
		if err != nil {
			return nil, fmt.Errorf("working hour %d: %w", wh.ID, err)
		}

		slotStart := max(whStart, q.TimeStart)
		slotEnd := min(whEnd, q.TimeEnd)
		if slotStart >= slotEnd {
			continue
		}

		meal := strings.ToLower(string(wh.Meal))
		for date := q.DateStart; !date.After(q.DateEnd); date = date.AddDate(0, 0, 1) {
			active, err := activeOn(date)
			if err != nil {
				return nil, err
			}

			for cursor := slotStart; cursor.Add(q.Duration) <= slotEnd; cursor = cursor.Add(q.Duration) {
				overlapping := CountOverlapping(active, cursor, cursor.Add(q.Duration))
				slots = append(slots, Slot{
					Date:              date,
					Meal:              meal,
					Start:             cursor,
					RemainingCapacity: canteen.Capacity - overlapping,
				})
			}
		}
	}

	return slots, nil
}

// SlotsPerDay is the number of slots one working-hour window yields per date for a query.
func SlotsPerDay(whStart, whEnd, qStart, qEnd TimeOfDay, duration int) int {
	if duration <= 0 {
		return 0
	}
	span := int(min(whEnd, qEnd) - max(whStart, qStart))
	if span <= 0 {
		return 0
	}
	return span / duration
}

// Bookable returns only slots that still have room.
func Bookable(slots []Slot) []Slot {
	var out []Slot
	for _, s := range slots {
		if s.RemainingCapacity > 0 {
			out = append(out, s)
		}
	}
	return out
}
