package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"menza/internal/model"
)

// mockSource implements ReservationSource for testing
type mockSource struct {
	byDate map[string][]model.Reservation // key: "YYYY-MM-DD"
	calls  int
	err    error
}

func (m *mockSource) ActiveReservationsByCanteen(ctx context.Context, canteenID int64, date time.Time) ([]model.Reservation, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.byDate[FormatDate(date)], nil
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}

func mustTime(t *testing.T, s string) TimeOfDay {
	t.Helper()
	v, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse time %s: %v", s, err)
	}
	return v
}

func lunchCanteen(capacity int) model.Canteen {
	return model.Canteen{
		ID:       1,
		Name:     "Central",
		Capacity: capacity,
		WorkingHours: []model.WorkingHour{
			{ID: 1, Meal: model.MealLunch, From: "12:00", To: "14:00"},
		},
	}
}

func TestComputeSlots(t *testing.T) {
	tests := []struct {
		name          string
		canteen       model.Canteen
		dateEnd       string
		timeStart     string
		timeEnd       string
		duration      int
		expectedCount int
	}{
		{
			name:          "full window 30 minute slots",
			canteen:       lunchCanteen(10),
			dateEnd:       "2026-03-09",
			timeStart:     "00:00",
			timeEnd:       "23:59",
			duration:      30,
			expectedCount: 4,
		},
		{
			name:          "full window 60 minute slots",
			canteen:       lunchCanteen(10),
			dateEnd:       "2026-03-09",
			timeStart:     "00:00",
			timeEnd:       "23:59",
			duration:      60,
			expectedCount: 2,
		},
		{
			name:          "query narrows window",
			canteen:       lunchCanteen(10),
			dateEnd:       "2026-03-09",
			timeStart:     "12:30",
			timeEnd:       "13:30",
			duration:      30,
			expectedCount: 2,
		},
		{
			name:          "query shorter than duration",
			canteen:       lunchCanteen(10),
			dateEnd:       "2026-03-09",
			timeStart:     "13:30",
			timeEnd:       "14:00",
			duration:      60,
			expectedCount: 0,
		},
		{
			name:          "query outside working hours",
			canteen:       lunchCanteen(10),
			dateEnd:       "2026-03-09",
			timeStart:     "15:00",
			timeEnd:       "18:00",
			duration:      30,
			expectedCount: 0,
		},
		{
			name:          "three days",
			canteen:       lunchCanteen(10),
			dateEnd:       "2026-03-11",
			timeStart:     "12:00",
			timeEnd:       "14:00",
			duration:      30,
			expectedCount: 12,
		},
		{
			name: "two meals",
			canteen: model.Canteen{
				ID:       1,
				Capacity: 5,
				WorkingHours: []model.WorkingHour{
					{ID: 1, Meal: model.MealBreakfast, From: "08:00", To: "10:00"},
					{ID: 2, Meal: model.MealDinner, From: "18:00", To: "20:00"},
				},
			},
			dateEnd:       "2026-03-09",
			timeStart:     "00:00",
			timeEnd:       "23:59",
			duration:      60,
			expectedCount: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewCalculator(&mockSource{})
			q := Query{
				DateStart: mustDate(t, "2026-03-09"),
				DateEnd:   mustDate(t, tt.dateEnd),
				TimeStart: mustTime(t, tt.timeStart),
				TimeEnd:   mustTime(t, tt.timeEnd),
				Duration:  tt.duration,
			}

			slots, err := calc.ComputeSlots(context.Background(), tt.canteen, q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(slots) != tt.expectedCount {
				t.Errorf("expected %d slots, got %d", tt.expectedCount, len(slots))
			}
			for _, s := range slots {
				if s.RemainingCapacity != tt.canteen.Capacity {
					t.Errorf("slot %s: remaining %d, want %d", s.Start, s.RemainingCapacity, tt.canteen.Capacity)
				}
			}
		})
	}
}

func TestComputeSlotsRemainingCapacity(t *testing.T) {
	source := &mockSource{byDate: map[string][]model.Reservation{
		"2026-03-09": {
			{Time: "12:00", Duration: 60, Status: model.StatusActive},
			{Time: "12:30", Duration: 30, Status: model.StatusActive},
		},
	}}
	calc := NewCalculator(source)

	slots, err := calc.ComputeSlots(context.Background(), lunchCanteen(2), Query{
		DateStart: mustDate(t, "2026-03-09"),
		DateEnd:   mustDate(t, "2026-03-10"),
		TimeStart: mustTime(t, "12:00"),
		TimeEnd:   mustTime(t, "14:00"),
		Duration:  30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		date      string
		start     string
		remaining int
	}{
		{"2026-03-09", "12:00", 1},
		{"2026-03-09", "12:30", 0},
		{"2026-03-09", "13:00", 2},
		{"2026-03-09", "13:30", 2},
		{"2026-03-10", "12:00", 2},
		{"2026-03-10", "12:30", 2},
		{"2026-03-10", "13:00", 2},
		{"2026-03-10", "13:30", 2},
	}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i, w := range want {
		s := slots[i]
		if FormatDate(s.Date) != w.date || s.Start.String() != w.start || s.RemainingCapacity != w.remaining {
			t.Errorf("slot[%d] = %s %s remaining %d, want %s %s remaining %d",
				i, FormatDate(s.Date), s.Start, s.RemainingCapacity, w.date, w.start, w.remaining)
		}
		if s.Meal != "lunch" {
			t.Errorf("slot[%d] meal = %q, want lunch", i, s.Meal)
		}
	}

	if source.calls != 2 {
		t.Errorf("expected one reservation read per date, got %d", source.calls)
	}

	if got := len(Bookable(slots)); got != 7 {
		t.Errorf("expected 7 bookable slots, got %d", got)
	}
}

func TestComputeSlotsOverbookedIsNotClamped(t *testing.T) {
	source := &mockSource{byDate: map[string][]model.Reservation{
		"2026-03-09": {
			{Time: "12:00", Duration: 30, Status: model.StatusActive},
			{Time: "12:00", Duration: 30, Status: model.StatusActive},
		},
	}}
	calc := NewCalculator(source)

	slots, err := calc.ComputeSlots(context.Background(), lunchCanteen(1), Query{
		DateStart: mustDate(t, "2026-03-09"),
		DateEnd:   mustDate(t, "2026-03-09"),
		TimeStart: mustTime(t, "12:00"),
		TimeEnd:   mustTime(t, "12:30"),
		Duration:  30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 1 || slots[0].RemainingCapacity != -1 {
		t.Fatalf("expected a single slot with remaining -1, got %+v", slots)
	}
}

func TestComputeSlotsOverlappingWindowsKeepBothMeals(t *testing.T) {
	canteen := model.Canteen{
		ID:       1,
		Capacity: 3,
		WorkingHours: []model.WorkingHour{
			{ID: 1, Meal: model.MealBreakfast, From: "08:00", To: "11:00"},
			{ID: 2, Meal: model.MealLunch, From: "10:00", To: "12:00"},
		},
	}
	calc := NewCalculator(&mockSource{})

	slots, err := calc.ComputeSlots(context.Background(), canteen, Query{
		DateStart: mustDate(t, "2026-03-09"),
		DateEnd:   mustDate(t, "2026-03-09"),
		TimeStart: mustTime(t, "10:00"),
		TimeEnd:   mustTime(t, "11:00"),
		Duration:  60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].Meal != "breakfast" || slots[1].Meal != "lunch" {
		t.Errorf("unexpected meal order: %s, %s", slots[0].Meal, slots[1].Meal)
	}
	if slots[0].Start != slots[1].Start {
		t.Errorf("expected same clock time, got %s and %s", slots[0].Start, slots[1].Start)
	}
}

func TestComputeSlotsSourceError(t *testing.T) {
	calc := NewCalculator(&mockSource{err: errors.New("db down")})

	_, err := calc.ComputeSlots(context.Background(), lunchCanteen(1), Query{
		DateStart: mustDate(t, "2026-03-09"),
		DateEnd:   mustDate(t, "2026-03-09"),
		TimeStart: mustTime(t, "12:00"),
		TimeEnd:   mustTime(t, "14:00"),
		Duration:  30,
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSlotsPerDayMatchesComputeSlots(t *testing.T) {
	calc := NewCalculator(&mockSource{})
	windows := [][2]string{{"12:00", "14:00"}, {"11:30", "13:00"}, {"12:15", "13:45"}, {"14:00", "15:00"}, {"10:00", "12:00"}}

	for _, duration := range []int{30, 60} {
		for _, w := range windows {
			qStart, qEnd := mustTime(t, w[0]), mustTime(t, w[1])
			slots, err := calc.ComputeSlots(context.Background(), lunchCanteen(1), Query{
				DateStart: mustDate(t, "2026-03-09"),
				DateEnd:   mustDate(t, "2026-03-09"),
				TimeStart: qStart,
				TimeEnd:   qEnd,
				Duration:  duration,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := SlotsPerDay(mustTime(t, "12:00"), mustTime(t, "14:00"), qStart, qEnd, duration)
			if len(slots) != want {
				t.Errorf("window %s-%s duration %d: got %d slots, formula says %d", w[0], w[1], duration, len(slots), want)
			}
		}
	}
}
