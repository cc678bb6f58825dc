// Package manager implements canteen administration and the student directory.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"menza/internal/apperr"
	"menza/internal/config"
	"menza/internal/db"
	"menza/internal/model"
)

// Store is the persistence used by the manager.
type Store interface {
	GetStudent(ctx context.Context, id int64) (*model.Student, error)
	ListStudents(ctx context.Context) ([]model.Student, error)
	CreateStudent(ctx context.Context, s *model.Student) error
	UpdateStudent(ctx context.Context, s *model.Student) error
	DeleteStudent(ctx context.Context, id int64) error

	GetCanteen(ctx context.Context, id int64) (*model.Canteen, error)
	ListCanteens(ctx context.Context) ([]model.Canteen, error)
	CreateCanteen(ctx context.Context, c *model.Canteen) error
	UpdateCanteen(ctx context.Context, c *model.Canteen) error
	DeleteCanteenCascadeCancel(ctx context.Context, id int64) (int64, error)
	SyncCanteensFromConfig(ctx context.Context, cfg *config.CanteensConfig) ([]int64, error)
}

// EventPublisher publishes canteen change events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Manager owns canteen and student writes.
type Manager struct {
	store    Store
	events   EventPublisher
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewManager creates a manager. bus may be nil.
func NewManager(store Store, bus EventPublisher, logger *zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		events:   bus,
		validate: validator.New(),
		logger:   logger.With().Str("component", "manager").Logger(),
	}
}

// requireAdmin fails with Forbidden unless the requester exists and is an admin.
func (m *Manager) requireAdmin(ctx context.Context, studentID int64, msg string) error {
	student, err := m.store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.New(apperr.Forbidden, msg)
		}
		return fmt.Errorf("load requester %d: %w", studentID, err)
	}
	if !student.IsAdmin {
		return apperr.New(apperr.Forbidden, msg)
	}
	return nil
}

func (m *Manager) publish(eventType string, payload any) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishJSON(eventType, payload); err != nil {
		m.logger.Error().Err(err).Str("event", eventType).Msg("Event handler failed")
	}
}

// validationMessage turns validator errors into one client-facing sentence.
func validationMessage(prefix string, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return prefix
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "email":
			parts = append(parts, field+" must be a valid email address")
		case "gt":
			parts = append(parts, field+" must be greater than "+fe.Param())
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return prefix + ": " + strings.Join(parts, ", ")
}
