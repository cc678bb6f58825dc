package manager

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"menza/internal/apperr"
	"menza/internal/config"
	"menza/internal/db"
	"menza/internal/events"
	"menza/internal/model"
	"menza/internal/slots"
)

type mockBus struct {
	mock.Mock
}

func (m *mockBus) PublishJSON(eventType string, payload any) error {
	return m.Called(eventType, payload).Error(0)
}

type fixture struct {
	mgr   *Manager
	db    *db.DB
	bus   *mockBus
	admin *model.Student
	user  *model.Student
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store, err := db.Open(filepath.Join(t.TempDir(), "menza.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := &mockBus{}
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Maybe()

	ctx := context.Background()
	admin := &model.Student{Name: "Admin", Email: "admin@example.com", IsAdmin: true}
	require.NoError(t, store.CreateStudent(ctx, admin))
	user := &model.Student{Name: "User", Email: "user@example.com"}
	require.NoError(t, store.CreateStudent(ctx, user))

	return &fixture{mgr: NewManager(store, bus, &logger), db: store, bus: bus, admin: admin, user: user}
}

func lunch() []WorkingHourInput {
	return []WorkingHourInput{{Meal: "Lunch", From: "12:00", To: "14:00"}}
}

func (f *fixture) createCanteen(t *testing.T, name string) *model.Canteen {
	t.Helper()
	c, err := f.mgr.CreateCanteen(context.Background(), &CanteenInput{
		Name: name, Location: "Campus", Capacity: 10, WorkingHours: lunch(),
	}, f.admin.ID)
	require.NoError(t, err)
	return c
}

func TestCreateCanteen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.createCanteen(t, "North")
	assert.NotZero(t, c.ID)
	require.Len(t, c.WorkingHours, 1)
	assert.Equal(t, model.MealLunch, c.WorkingHours[0].Meal)
	f.bus.AssertCalled(t, "PublishJSON", events.CanteenChanged, events.CanteenPayload{CanteenID: c.ID})

	valid := func(mutate func(in *CanteenInput)) *CanteenInput {
		in := &CanteenInput{Name: "South", Location: "Campus", Capacity: 5, WorkingHours: lunch()}
		mutate(in)
		return in
	}

	tests := []struct {
		name      string
		in        *CanteenInput
		requester int64
		kind      apperr.Kind
		msg       string
	}{
		{"NotAdmin", valid(func(*CanteenInput) {}), f.user.ID, apperr.Forbidden, "Only an admin can create a canteen."},
		{"UnknownRequester", valid(func(*CanteenInput) {}), 999, apperr.Forbidden, "Only an admin can create a canteen."},
		{"AdminCheckComesFirst", nil, f.user.ID, apperr.Forbidden, "Only an admin can create a canteen."},
		{"NoData", nil, f.admin.ID, apperr.BadRequest, "Canteen data must be provided."},
		{"NoHours", valid(func(in *CanteenInput) { in.WorkingHours = nil }), f.admin.ID, apperr.BadRequest, "Canteen must have working hours."},
		{"ZeroCapacity", valid(func(in *CanteenInput) { in.Capacity = 0 }), f.admin.ID, apperr.BadRequest, "Invalid canteen data: capacity must be greater than 0"},
		{"MissingName", valid(func(in *CanteenInput) { in.Name = "" }), f.admin.ID, apperr.BadRequest, "Invalid canteen data: name is required"},
		{"MissingMeal", valid(func(in *CanteenInput) { in.WorkingHours[0].Meal = "" }), f.admin.ID, apperr.BadRequest, "Invalid canteen data: meal is required"},
		{"UnknownMeal", valid(func(in *CanteenInput) { in.WorkingHours[0].Meal = "brunch" }), f.admin.ID, apperr.BadRequest, "Working hour 1: meal must be breakfast, lunch or dinner."},
		{"BadTime", valid(func(in *CanteenInput) { in.WorkingHours[0].To = "2pm" }), f.admin.ID, apperr.BadRequest, "Working hour 1: times must be HH:MM."},
		{"EmptyWindow", valid(func(in *CanteenInput) { in.WorkingHours[0].To = "12:00" }), f.admin.ID, apperr.BadRequest, "Working hour 1: from must be before to."},
		{"DuplicateName", valid(func(in *CanteenInput) { in.Name = "North" }), f.admin.ID, apperr.Conflict, "A canteen with this name already exists."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.CreateCanteen(ctx, tt.in, tt.requester)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.msg, apperr.PublicMessage(err))
		})
	}

	all, err := f.mgr.ListCanteens(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdateCanteen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCanteen(t, "North")
	f.createCanteen(t, "South")

	ptr := func(s string) *string { return &s }
	num := func(n int) *int { return &n }

	t.Run("NoData", func(t *testing.T) {
		_, err := f.mgr.UpdateCanteen(ctx, c.ID, nil, f.user.ID)
		assert.Equal(t, "Canteen data must be provided.", apperr.PublicMessage(err))
	})

	t.Run("NotAdmin", func(t *testing.T) {
		_, err := f.mgr.UpdateCanteen(ctx, c.ID, &CanteenPatch{Capacity: num(3)}, f.user.ID)
		assert.True(t, apperr.IsKind(err, apperr.Forbidden))
		assert.Equal(t, "Only an admin can update the canteen.", apperr.PublicMessage(err))
	})

	t.Run("UnknownCanteen", func(t *testing.T) {
		_, err := f.mgr.UpdateCanteen(ctx, 999, &CanteenPatch{Capacity: num(3)}, f.admin.ID)
		assert.True(t, apperr.IsKind(err, apperr.CanteenNotFound))
	})

	t.Run("PartialMerge", func(t *testing.T) {
		got, err := f.mgr.UpdateCanteen(ctx, c.ID, &CanteenPatch{
			Name:     ptr(""),
			Location: ptr("Block B"),
			Capacity: num(0),
		}, f.admin.ID)
		require.NoError(t, err)
		assert.Equal(t, "North", got.Name)
		assert.Equal(t, "Block B", got.Location)
		assert.Equal(t, 10, got.Capacity)
		require.Len(t, got.WorkingHours, 1)
		assert.Equal(t, "12:00", got.WorkingHours[0].From)
	})

	t.Run("ReplaceHours", func(t *testing.T) {
		got, err := f.mgr.UpdateCanteen(ctx, c.ID, &CanteenPatch{
			Capacity: num(20),
			WorkingHours: []WorkingHourInput{
				{Meal: "breakfast", From: "07:00", To: "09:00"},
				{Meal: "dinner", From: "18:00", To: "20:00"},
			},
		}, f.admin.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, got.Capacity)
		require.Len(t, got.WorkingHours, 2)
		assert.Equal(t, model.MealDinner, got.WorkingHours[1].Meal)
	})

	t.Run("InvalidHours", func(t *testing.T) {
		_, err := f.mgr.UpdateCanteen(ctx, c.ID, &CanteenPatch{
			WorkingHours: []WorkingHourInput{{Meal: "lunch", From: "14:00", To: "12:00"}},
		}, f.admin.ID)
		assert.True(t, apperr.IsKind(err, apperr.BadRequest))
	})

	t.Run("DuplicateName", func(t *testing.T) {
		_, err := f.mgr.UpdateCanteen(ctx, c.ID, &CanteenPatch{Name: ptr("South")}, f.admin.ID)
		assert.True(t, apperr.IsKind(err, apperr.Conflict))
	})
}

func TestDeleteCanteen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCanteen(t, "North")

	day, err := slots.ParseDate("2026-03-10")
	require.NoError(t, err)
	var ids []int64
	for _, at := range []string{"12:00", "13:00"} {
		r := &model.Reservation{StudentID: f.user.ID, CanteenID: c.ID, Date: day, Time: at, Duration: 30}
		require.NoError(t, f.db.Admit(ctx, r, nil))
		ids = append(ids, r.ID)
	}

	err = f.mgr.DeleteCanteen(ctx, c.ID, f.user.ID)
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))
	assert.Equal(t, "Only an admin can delete the canteen.", apperr.PublicMessage(err))

	require.NoError(t, f.mgr.DeleteCanteen(ctx, c.ID, f.admin.ID))
	f.bus.AssertCalled(t, "PublishJSON", events.CanteenDeleted, events.CanteenPayload{CanteenID: c.ID, Cancelled: 2})

	for _, id := range ids {
		r, err := f.db.GetReservation(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, r.Status)
	}

	_, err = f.mgr.GetCanteen(ctx, c.ID)
	assert.True(t, apperr.IsKind(err, apperr.CanteenNotFound))
	err = f.mgr.DeleteCanteen(ctx, c.ID, f.admin.ID)
	assert.True(t, apperr.IsKind(err, apperr.CanteenNotFound))
}

func TestStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.mgr.CreateStudent(ctx, StudentInput{Name: " Ana ", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", s.Name)

	tests := []struct {
		name string
		in   StudentInput
		kind apperr.Kind
		msg  string
	}{
		{"BadEmail", StudentInput{Name: "Bo", Email: "bo.example.com"}, apperr.BadRequest, "Invalid student data: email must be a valid email address"},
		{"MissingName", StudentInput{Email: "bo@example.com"}, apperr.BadRequest, "Invalid student data: name is required"},
		{"DuplicateEmail", StudentInput{Name: "Bo", Email: "ana@example.com"}, apperr.Conflict, "A student with this email already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.CreateStudent(ctx, tt.in)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.msg, apperr.PublicMessage(err))
		})
	}

	updated, err := f.mgr.UpdateStudent(ctx, s.ID, StudentInput{Name: "Ana K", Email: "ana.k@example.com", IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, "ana.k@example.com", updated.Email)
	assert.True(t, updated.IsAdmin)

	_, err = f.mgr.UpdateStudent(ctx, 0, StudentInput{Name: "X", Email: "x@example.com"})
	assert.True(t, apperr.IsKind(err, apperr.StudentNotFound))
	_, err = f.mgr.UpdateStudent(ctx, 999, StudentInput{Name: "X", Email: "x@example.com"})
	assert.True(t, apperr.IsKind(err, apperr.StudentNotFound))
	_, err = f.mgr.UpdateStudent(ctx, s.ID, StudentInput{Name: "X", Email: f.user.Email})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	all, err := f.mgr.ListStudents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCanteen(t, "North")

	day, err := slots.ParseDate("2026-03-10")
	require.NoError(t, err)
	require.NoError(t, f.db.Admit(ctx, &model.Reservation{StudentID: f.user.ID, CanteenID: c.ID, Date: day, Time: "12:00", Duration: 30}, nil))

	err = f.mgr.DeleteStudent(ctx, f.user.ID)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	require.NoError(t, f.mgr.DeleteStudent(ctx, f.admin.ID))
	_, err = f.mgr.GetStudent(ctx, f.admin.ID)
	assert.True(t, apperr.IsKind(err, apperr.StudentNotFound))

	err = f.mgr.DeleteStudent(ctx, 999)
	assert.True(t, apperr.IsKind(err, apperr.StudentNotFound))
}

func TestSyncCanteensFromConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := &config.CanteensConfig{Canteens: []config.CanteenConfig{
		{ID: 3, Name: "Seeded", Location: "Main", Capacity: 50, WorkingHours: []config.WorkingHourConfig{{Meal: "lunch", From: "11:00", To: "15:00"}}},
	}}
	require.NoError(t, f.mgr.SyncCanteensFromConfig(ctx, cfg))
	f.bus.AssertCalled(t, "PublishJSON", events.CanteenChanged, events.CanteenPayload{CanteenID: 3})

	c, err := f.mgr.GetCanteen(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Seeded", c.Name)

	assert.Error(t, f.mgr.SyncCanteensFromConfig(ctx, nil))
}
