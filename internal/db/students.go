package db

import (
	"context"
	"fmt"
	"time"

	"menza/internal/model"
)

// GetStudent returns a student by id.
func (db *DB) GetStudent(ctx context.Context, id int64) (*model.Student, error) {
	return getStudent(ctx, db, id)
}

func getStudent(ctx context.Context, q queryer, id int64) (*model.Student, error) {
	var s model.Student
	err := q.QueryRowContext(ctx,
		"SELECT id, name, email, is_admin, created_at, updated_at FROM students WHERE id = ?",
		id,
	).Scan(&s.ID, &s.Name, &s.Email, &s.IsAdmin, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// ListStudents returns all students ordered by id.
func (db *DB) ListStudents(ctx context.Context) ([]model.Student, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, email, is_admin, created_at, updated_at FROM students ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.IsAdmin, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// CreateStudent inserts a student and assigns its id.
func (db *DB) CreateStudent(ctx context.Context, s *model.Student) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO students (name, email, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.Name, s.Email, s.IsAdmin, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert student: %w", translate(err))
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// UpdateStudent persists name, email and admin flag.
func (db *DB) UpdateStudent(ctx context.Context, s *model.Student) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		UPDATE students SET name = ?, email = ?, is_admin = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.Email, s.IsAdmin, now, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update student %d: %w", s.ID, translate(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.UpdatedAt = now
	return nil
}

// DeleteStudent removes a student. Students that still own reservations are rejected
// with ErrReferenced.
func (db *DB) DeleteStudent(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete student %d: %w", id, translate(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
