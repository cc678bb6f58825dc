package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"menza/internal/apperr"
	"menza/internal/db"
	"menza/internal/model"
)

// StudentInput is the payload of a student create or update.
type StudentInput struct {
	Name    string `validate:"required"`
	Email   string `validate:"required,email"`
	IsAdmin bool
}

// GetStudent returns one student.
func (m *Manager) GetStudent(ctx context.Context, id int64) (*model.Student, error) {
	s, err := m.store.GetStudent(ctx, id)
	if err != nil {
		return nil, studentNotFound(err)
	}
	return s, nil
}

// ListStudents returns all students ordered by id.
func (m *Manager) ListStudents(ctx context.Context) ([]model.Student, error) {
	students, err := m.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// CreateStudent registers a student. Emails are unique.
func (m *Manager) CreateStudent(ctx context.Context, in StudentInput) (*model.Student, error) {
	if err := m.validateStudent(&in); err != nil {
		return nil, err
	}

	s := &model.Student{Name: in.Name, Email: in.Email, IsAdmin: in.IsAdmin}
	if err := m.store.CreateStudent(ctx, s); err != nil {
		return nil, duplicateEmail(err)
	}

	m.logger.Info().Int64("student_id", s.ID).Bool("is_admin", s.IsAdmin).Msg("Student created")
	return s, nil
}

// UpdateStudent replaces a student's name, email and admin flag.
func (m *Manager) UpdateStudent(ctx context.Context, id int64, in StudentInput) (*model.Student, error) {
	if id <= 0 {
		return nil, apperr.New(apperr.StudentNotFound, "Student does not exist")
	}
	if err := m.validateStudent(&in); err != nil {
		return nil, err
	}

	s := &model.Student{ID: id, Name: in.Name, Email: in.Email, IsAdmin: in.IsAdmin}
	if err := m.store.UpdateStudent(ctx, s); err != nil {
		return nil, studentNotFound(duplicateEmail(err))
	}

	m.logger.Info().Int64("student_id", id).Msg("Student updated")
	return m.GetStudent(ctx, id)
}

// DeleteStudent removes a student who owns no reservations.
func (m *Manager) DeleteStudent(ctx context.Context, id int64) error {
	err := m.store.DeleteStudent(ctx, id)
	switch {
	case err == nil:
		m.logger.Info().Int64("student_id", id).Msg("Student deleted")
		return nil
	case errors.Is(err, db.ErrReferenced):
		return apperr.Wrap(apperr.Conflict, "Student has reservations and cannot be deleted.", err)
	default:
		return studentNotFound(err)
	}
}

func (m *Manager) validateStudent(in *StudentInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := m.validate.Struct(in); err != nil {
		return apperr.Wrap(apperr.BadRequest, validationMessage("Invalid student data", err), err)
	}
	return nil
}

func studentNotFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.Wrap(apperr.StudentNotFound, "Student does not exist", err)
	}
	return err
}

func duplicateEmail(err error) error {
	if errors.Is(err, db.ErrDuplicate) {
		return apperr.Wrap(apperr.Conflict, "A student with this email already exists", err)
	}
	return err
}
