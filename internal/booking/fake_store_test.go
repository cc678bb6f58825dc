package booking

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"menza/internal/db"
	"menza/internal/model"
	"menza/internal/slots"
)

// fakeStore is an in-memory Store. Admit holds the mutex across check and insert,
// like the immediate transaction of the real store.
type fakeStore struct {
	mu           sync.Mutex
	students     map[int64]*model.Student
	canteens     map[int64]*model.Canteen
	reservations map[int64]*model.Reservation
	nextID       int64

	admitErr    error // returned by Admit before the check runs
	cancelErr   error // returned by CancelReservation instead of updating
	activeReads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		students:     make(map[int64]*model.Student),
		canteens:     make(map[int64]*model.Canteen),
		reservations: make(map[int64]*model.Reservation),
	}
}

func (f *fakeStore) addStudent(id int64) {
	f.students[id] = &model.Student{ID: id, Name: "Student", Email: "s@example.com"}
}

func (f *fakeStore) addCanteen(id int64, capacity int, hours ...[2]string) {
	c := &model.Canteen{ID: id, Name: "Canteen", Capacity: capacity}
	for i, h := range hours {
		c.WorkingHours = append(c.WorkingHours, model.WorkingHour{
			ID: int64(i + 1), CanteenID: id, Meal: model.MealLunch, From: h[0], To: h[1],
		})
	}
	f.canteens[id] = c
}

func (f *fakeStore) GetStudent(ctx context.Context, id int64) (*model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GetCanteen(ctx context.Context, id int64) (*model.Canteen, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.canteens[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) ListCanteens(ctx context.Context) ([]model.Canteen, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Canteen
	for id := int64(1); id <= 100; id++ {
		if c, ok := f.canteens[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListReservations(ctx context.Context, filter db.ReservationFilter) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reservation
	for id := int64(1); id <= f.nextID; id++ {
		r, ok := f.reservations[id]
		if !ok {
			continue
		}
		if filter.StudentID > 0 && r.StudentID != filter.StudentID {
			continue
		}
		if filter.CanteenID > 0 && r.CanteenID != filter.CanteenID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) active(match func(r *model.Reservation) bool) []model.Reservation {
	var out []model.Reservation
	for _, r := range f.reservations {
		if r.Status == model.StatusActive && match(r) {
			out = append(out, *r)
		}
	}
	return out
}

func (f *fakeStore) ActiveReservationsByCanteen(ctx context.Context, canteenID int64, date time.Time) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeReads++
	return f.active(func(r *model.Reservation) bool {
		return r.CanteenID == canteenID && r.Date.Equal(date)
	}), nil
}

func (f *fakeStore) Admit(ctx context.Context, r *model.Reservation, check db.AdmitCheck) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.admitErr != nil {
		return f.admitErr
	}

	c, ok := f.canteens[r.CanteenID]
	if !ok {
		return db.ErrNotFound
	}
	if _, ok := f.students[r.StudentID]; !ok {
		return db.ErrReferenced
	}
	canteenActive := f.active(func(x *model.Reservation) bool {
		return x.CanteenID == r.CanteenID && x.Date.Equal(r.Date)
	})
	studentActive := f.active(func(x *model.Reservation) bool {
		return x.StudentID == r.StudentID && x.Date.Equal(r.Date)
	})
	if err := check(c, canteenActive, studentActive); err != nil {
		return err
	}

	f.nextID++
	r.ID = f.nextID
	r.Status = model.StatusActive
	cp := *r
	f.reservations[r.ID] = &cp
	return nil
}

func (f *fakeStore) CancelReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if f.cancelErr != nil {
		cp := *r
		return &cp, f.cancelErr
	}
	if r.Status != model.StatusActive {
		cp := *r
		return &cp, db.ErrNotActive
	}
	r.Status = model.StatusCancelled
	cp := *r
	return &cp, nil
}

func (f *fakeStore) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reservations[r.ID]; !ok {
		return db.ErrNotFound
	}
	if _, ok := f.students[r.StudentID]; !ok {
		return db.ErrReferenced
	}
	cp := *r
	f.reservations[r.ID] = &cp
	return nil
}

// seed stores an active reservation directly, bypassing admission.
func (f *fakeStore) seed(studentID, canteenID int64, date, at string, duration int) *model.Reservation {
	d, err := slots.ParseDate(date)
	if err != nil {
		panic(err)
	}
	f.nextID++
	r := &model.Reservation{
		ID: f.nextID, StudentID: studentID, CanteenID: canteenID,
		Date: d, Time: at, Duration: duration, Status: model.StatusActive,
	}
	f.reservations[r.ID] = r
	cp := *r
	return &cp
}

type mockBus struct {
	mock.Mock
}

func (m *mockBus) PublishJSON(eventType string, payload any) error {
	return m.Called(eventType, payload).Error(0)
}

type memCache struct {
	entries map[string][]slots.Slot
	hits    int
}

func (c *memCache) Get(ctx context.Context, canteenID int64, query string) ([]slots.Slot, string, bool) {
	key := fmt.Sprintf("%d/%s", canteenID, query)
	s, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return s, key, ok
}

func (c *memCache) Set(ctx context.Context, key string, s []slots.Slot) {
	if c.entries == nil {
		c.entries = make(map[string][]slots.Slot)
	}
	c.entries[key] = s
}

// today is the pinned current date for every test in this package.
var today = time.Date(2026, 3, 9, 10, 15, 0, 0, time.UTC)

func newTestService(store Store, bus EventPublisher, cache SlotCache) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(store, bus, cache, clockwork.NewFakeClockAt(today), 31, &logger)
}
