// Package booking admits, cancels and corrects reservations and answers availability queries.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"menza/internal/apperr"
	"menza/internal/db"
	"menza/internal/events"
	"menza/internal/metrics"
	"menza/internal/model"
	"menza/internal/slots"
)

// Store is the persistence the reservation core reads and writes.
type Store interface {
	GetStudent(ctx context.Context, id int64) (*model.Student, error)
	GetCanteen(ctx context.Context, id int64) (*model.Canteen, error)
	ListCanteens(ctx context.Context) ([]model.Canteen, error)
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	ListReservations(ctx context.Context, f db.ReservationFilter) ([]model.Reservation, error)
	ActiveReservationsByCanteen(ctx context.Context, canteenID int64, date time.Time) ([]model.Reservation, error)
	Admit(ctx context.Context, r *model.Reservation, check db.AdmitCheck) error
	CancelReservation(ctx context.Context, id int64) (*model.Reservation, error)
	UpdateReservation(ctx context.Context, r *model.Reservation) error
}

// EventPublisher publishes reservation lifecycle events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// SlotCache stores computed availability per canteen. Get returns the key that a
// following Set must use, fixed before the slots are computed.
type SlotCache interface {
	Get(ctx context.Context, canteenID int64, query string) (s []slots.Slot, key string, ok bool)
	Set(ctx context.Context, key string, s []slots.Slot)
}

// ReservationRequest carries the caller-supplied fields of a reservation.
type ReservationRequest struct {
	StudentID int64
	CanteenID int64
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	Duration  int    // minutes
}

// Service implements reservation admission, cancellation and availability.
type Service struct {
	store   Store
	calc    *slots.Calculator
	fsm     *FSM
	events  EventPublisher
	cache   SlotCache
	clock   clockwork.Clock
	maxDays int
	logger  zerolog.Logger
}

// NewService wires the reservation core. events and cache may be nil.
// maxAvailabilityDays bounds the inclusive date range of availability queries.
func NewService(store Store, bus EventPublisher, cache SlotCache, clock clockwork.Clock, maxAvailabilityDays int, logger *zerolog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxAvailabilityDays <= 0 {
		maxAvailabilityDays = 90
	}
	return &Service{
		store:   store,
		calc:    slots.NewCalculator(store),
		fsm:     NewFSM(),
		events:  bus,
		cache:   cache,
		clock:   clock,
		maxDays: maxAvailabilityDays,
		logger:  logger.With().Str("component", "booking").Logger(),
	}
}

// CreateReservation validates req and, if every check passes, stores an active reservation.
// Checks run in a fixed order and the first failure is returned. The student-overlap and
// capacity checks run inside the store's admission transaction against freshly read rows.
func (s *Service) CreateReservation(ctx context.Context, req ReservationRequest) (*model.Reservation, error) {
	r, err := s.admit(ctx, req)
	if err != nil {
		outcome := string(apperr.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		metrics.IncAdmission(outcome)
		return nil, err
	}
	metrics.IncAdmission("admitted")

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("student_id", r.StudentID).
		Int64("canteen_id", r.CanteenID).
		Str("date", slots.FormatDate(r.Date)).
		Str("time", r.Time).
		Int("duration", r.Duration).
		Msg("Reservation admitted")
	s.publish(events.ReservationCreated, reservationPayload(r))
	return r, nil
}

func (s *Service) admit(ctx context.Context, req ReservationRequest) (*model.Reservation, error) {
	if req.StudentID <= 0 || req.CanteenID <= 0 {
		return nil, apperr.New(apperr.InvalidIdentifier, "Invalid student or canteen ID")
	}

	date, err := slots.ParseDate(req.Date)
	if err != nil {
		return nil, apperr.New(apperr.InvalidFormat, "Invalid date format")
	}
	if date.Before(slots.DateOf(s.clock.Now())) {
		return nil, apperr.New(apperr.PastDate, "Reservation date cannot be in the past")
	}

	start, err := slots.ParseTimeOfDay(req.Time)
	if err != nil {
		return nil, apperr.New(apperr.InvalidFormat, "Invalid time format")
	}
	if !slots.IsAligned(start) {
		return nil, apperr.New(apperr.InvalidTimeAlignment, "Time must start on the hour or half-hour")
	}

	if !slots.ValidDuration(req.Duration) {
		return nil, apperr.New(apperr.InvalidDuration, "Duration must be 30 or 60 minutes")
	}
	end := start.Add(req.Duration)

	if _, err := s.store.GetStudent(ctx, req.StudentID); err != nil {
		return nil, notFound(err, apperr.StudentNotFound, "Student does not exist")
	}

	canteen, err := s.store.GetCanteen(ctx, req.CanteenID)
	if err != nil {
		return nil, notFound(err, apperr.CanteenNotFound, "Canteen does not exist")
	}
	if err := checkWorkingHours(canteen, start, end); err != nil {
		return nil, err
	}

	r := &model.Reservation{
		StudentID: req.StudentID,
		CanteenID: req.CanteenID,
		Date:      date,
		Time:      start.String(),
		Duration:  req.Duration,
	}

	err = s.store.Admit(ctx, r, func(fresh *model.Canteen, canteenActive, studentActive []model.Reservation) error {
		// Hours may have been edited since the read above.
		if err := checkWorkingHours(fresh, start, end); err != nil {
			return err
		}
		if slots.AnyOverlapping(studentActive, start, end) {
			return apperr.New(apperr.StudentDoubleBooked, "Student already has a reservation at this time")
		}
		if slots.CountOverlapping(canteenActive, start, end) >= fresh.Capacity {
			return apperr.New(apperr.CanteenFull, "Canteen is at full capacity for this time slot")
		}
		return nil
	})
	switch {
	case err == nil:
		return r, nil
	case apperr.KindOf(err) != "":
		return nil, err
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.Wrap(apperr.CanteenNotFound, "Canteen does not exist", err)
	case errors.Is(err, db.ErrReferenced):
		return nil, apperr.Wrap(apperr.StudentNotFound, "Student does not exist", err)
	case errors.Is(err, db.ErrBusy):
		return nil, apperr.Wrap(apperr.Conflict, "Reservation conflicted with a concurrent booking, please retry", err)
	default:
		return nil, fmt.Errorf("admit reservation: %w", err)
	}
}

func checkWorkingHours(c *model.Canteen, start, end slots.TimeOfDay) error {
	for _, wh := range c.WorkingHours {
		from, err := slots.ParseTimeOfDay(wh.From)
		if err != nil {
			continue
		}
		to, err := slots.ParseTimeOfDay(wh.To)
		if err != nil {
			continue
		}
		if slots.Contains(from, to, start, end) {
			return nil
		}
	}
	return apperr.New(apperr.OutsideWorkingHours, "Reservation time is outside the canteen's working hours")
}

// CancelReservation cancels a reservation on behalf of the student who made it.
func (s *Service) CancelReservation(ctx context.Context, id, studentID int64) (*model.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, notFound(err, apperr.ReservationNotFound, "Reservation not found")
	}
	if r.StudentID != studentID {
		return nil, apperr.New(apperr.NotOwner, "Only the student who made the reservation can cancel it.")
	}
	if !s.fsm.CanTransition(r.Status, model.StatusCancelled) {
		return nil, apperr.New(apperr.AlreadyCancelled, "Reservation is already cancelled.")
	}

	updated, err := s.store.CancelReservation(ctx, id)
	switch {
	case errors.Is(err, db.ErrNotActive):
		// Lost a race with another cancel.
		return nil, apperr.Wrap(apperr.AlreadyCancelled, "Reservation is already cancelled.", err)
	case err != nil:
		return nil, notFound(err, apperr.ReservationNotFound, "Reservation not found")
	}

	metrics.AddCancellations("student", 1)
	s.logger.Info().
		Int64("reservation_id", id).
		Int64("student_id", studentID).
		Msg("Reservation cancelled")
	s.publish(events.ReservationCancelled, reservationPayload(updated))
	return updated, nil
}

// UpdateReservation overwrites a reservation's fields after format checks and an existence
// check of the student and canteen. Working hours, overlap and capacity are not re-checked.
func (s *Service) UpdateReservation(ctx context.Context, id int64, req ReservationRequest) (*model.Reservation, error) {
	if id <= 0 {
		return nil, apperr.New(apperr.ReservationNotFound, "Reservation not found")
	}
	if req.StudentID <= 0 || req.CanteenID <= 0 {
		return nil, apperr.New(apperr.InvalidIdentifier, "Invalid student or canteen ID")
	}
	date, err := slots.ParseDate(req.Date)
	if err != nil {
		return nil, apperr.New(apperr.InvalidFormat, "Invalid date format")
	}
	start, err := slots.ParseTimeOfDay(req.Time)
	if err != nil {
		return nil, apperr.New(apperr.InvalidFormat, "Invalid time format")
	}
	if !slots.ValidDuration(req.Duration) {
		return nil, apperr.New(apperr.InvalidDuration, "Duration must be 30 or 60 minutes")
	}

	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, notFound(err, apperr.ReservationNotFound, "Reservation not found")
	}
	previousCanteen := r.CanteenID
	// canteen_id carries no foreign key, so existence is checked here.
	if _, err := s.store.GetCanteen(ctx, req.CanteenID); err != nil {
		return nil, notFound(err, apperr.CanteenNotFound, "Canteen does not exist")
	}

	r.StudentID = req.StudentID
	r.CanteenID = req.CanteenID
	r.Date = date
	r.Time = start.String()
	r.Duration = req.Duration

	if err := s.store.UpdateReservation(ctx, r); err != nil {
		if errors.Is(err, db.ErrReferenced) {
			return nil, apperr.Wrap(apperr.StudentNotFound, "Student does not exist", err)
		}
		return nil, notFound(err, apperr.ReservationNotFound, "Reservation not found")
	}

	s.logger.Warn().
		Int64("reservation_id", r.ID).
		Msg("Reservation corrected without admission checks")
	payload := reservationPayload(r)
	if previousCanteen != r.CanteenID {
		payload.PreviousCanteenID = previousCanteen
	}
	s.publish(events.ReservationUpdated, payload)
	return r, nil
}

// GetReservation returns a reservation by id.
func (s *Service) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, notFound(err, apperr.ReservationNotFound, "Reservation not found")
	}
	return r, nil
}

// ListReservations returns reservations matching f.
func (s *Service) ListReservations(ctx context.Context, f db.ReservationFilter) ([]model.Reservation, error) {
	res, err := s.store.ListReservations(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return res, nil
}

func (s *Service) publish(eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("Event handler failed")
	}
}

func reservationPayload(r *model.Reservation) events.ReservationPayload {
	return events.ReservationPayload{
		ReservationID: r.ID,
		StudentID:     r.StudentID,
		CanteenID:     r.CanteenID,
		Date:          slots.FormatDate(r.Date),
		Time:          r.Time,
		Duration:      r.Duration,
	}
}

// notFound maps db.ErrNotFound to a domain error of kind and passes other errors through.
func notFound(err error, kind apperr.Kind, msg string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.Wrap(kind, msg, err)
	}
	return err
}
