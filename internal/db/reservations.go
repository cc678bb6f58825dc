package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"menza/internal/model"
	"menza/internal/slots"
)

const reservationColumns = `id, student_id, canteen_id, date, time, duration, status, created_at, updated_at`

// ReservationFilter narrows ListReservations. Zero values do not filter.
type ReservationFilter struct {
	StudentID int64
	CanteenID int64
	Status    model.ReservationStatus
	DateFrom  time.Time // inclusive
	DateTo    time.Time // inclusive
}

// AdmitCheck inspects state read inside the admission transaction.
// A non-nil error aborts the transaction and is returned from Admit unchanged.
type AdmitCheck func(canteen *model.Canteen, canteenActive, studentActive []model.Reservation) error

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var r model.Reservation
	var date string
	if err := s.Scan(
		&r.ID, &r.StudentID, &r.CanteenID, &date, &r.Time, &r.Duration,
		&r.Status, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d, err := time.Parse(slots.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("reservation %d: bad stored date %q: %w", r.ID, date, err)
	}
	r.Date = d
	return &r, nil
}

func queryReservations(ctx context.Context, q queryer, query string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetReservation returns a reservation by id.
func (db *DB) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	r, err := scanReservation(db.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id,
	))
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

// ListReservations returns reservations matching the filter ordered by date, time and id.
func (db *DB) ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	var where []string
	var args []any
	if f.StudentID > 0 {
		where = append(where, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.CanteenID > 0 {
		where = append(where, "canteen_id = ?")
		args = append(args, f.CanteenID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.DateFrom.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, slots.FormatDate(f.DateFrom))
	}
	if !f.DateTo.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, slots.FormatDate(f.DateTo))
	}

	query := "SELECT " + reservationColumns + " FROM reservations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, time, id"

	res, err := queryReservations(ctx, db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return res, nil
}

// ActiveReservationsByCanteen returns the canteen's active reservations on date.
func (db *DB) ActiveReservationsByCanteen(ctx context.Context, canteenID int64, date time.Time) ([]model.Reservation, error) {
	return activeByCanteen(ctx, db, canteenID, date)
}

// ActiveReservationsByStudent returns the student's active reservations on date, in any canteen.
func (db *DB) ActiveReservationsByStudent(ctx context.Context, studentID int64, date time.Time) ([]model.Reservation, error) {
	return activeByStudent(ctx, db, studentID, date)
}

func activeByCanteen(ctx context.Context, q queryer, canteenID int64, date time.Time) ([]model.Reservation, error) {
	return queryReservations(ctx, q,
		"SELECT "+reservationColumns+" FROM reservations WHERE canteen_id = ? AND date = ? AND status = ? ORDER BY time, id",
		canteenID, slots.FormatDate(date), model.StatusActive,
	)
}

func activeByStudent(ctx context.Context, q queryer, studentID int64, date time.Time) ([]model.Reservation, error) {
	return queryReservations(ctx, q,
		"SELECT "+reservationColumns+" FROM reservations WHERE student_id = ? AND date = ? AND status = ? ORDER BY time, id",
		studentID, slots.FormatDate(date), model.StatusActive,
	)
}

// Admit re-reads the canteen and the active reservations that constrain r, runs check
// against them and inserts r as active, all inside one immediate transaction. Concurrent
// admissions therefore observe each other's inserts.
// ErrNotFound means the canteen disappeared; ErrReferenced means the student did.
func (db *DB) Admit(ctx context.Context, r *model.Reservation, check AdmitCheck) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", translate(err))
	}
	defer func() { _ = tx.Rollback() }()

	canteen, err := getCanteen(ctx, tx, r.CanteenID)
	if err != nil {
		return fmt.Errorf("load canteen %d: %w", r.CanteenID, err)
	}
	canteenActive, err := activeByCanteen(ctx, tx, r.CanteenID, r.Date)
	if err != nil {
		return fmt.Errorf("load canteen reservations: %w", err)
	}
	studentActive, err := activeByStudent(ctx, tx, r.StudentID, r.Date)
	if err != nil {
		return fmt.Errorf("load student reservations: %w", err)
	}

	if check != nil {
		if err := check(canteen, canteenActive, studentActive); err != nil {
			return err
		}
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (student_id, canteen_id, date, time, duration, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StudentID, r.CanteenID, slots.FormatDate(r.Date), r.Time, r.Duration, model.StatusActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", translate(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}

	r.ID = id
	r.Status = model.StatusActive
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// CancelReservation moves an active reservation to cancelled and returns the updated row.
// Only one of several concurrent callers succeeds; the others get ErrNotActive.
func (db *DB) CancelReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE reservations SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		model.StatusCancelled, time.Now(), id, model.StatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel reservation %d: %w", id, translate(err))
	}

	n, _ := res.RowsAffected()
	r, err := db.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return r, ErrNotActive
	}
	return r, nil
}

// UpdateReservation overwrites the student, canteen, date, time and duration of a reservation.
// Status is left untouched.
func (db *DB) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		UPDATE reservations
		SET student_id = ?, canteen_id = ?, date = ?, time = ?, duration = ?, updated_at = ?
		WHERE id = ?`,
		r.StudentID, r.CanteenID, slots.FormatDate(r.Date), r.Time, r.Duration, now, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reservation %d: %w", r.ID, translate(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	r.UpdatedAt = now
	return nil
}

// CountReservations returns the number of reservations in each status.
func (db *DB) CountReservations(ctx context.Context) (map[model.ReservationStatus]int, error) {
	rows, err := db.QueryContext(ctx, "SELECT status, COUNT(*) FROM reservations GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count reservations: %w", err)
	}
	defer rows.Close()

	out := make(map[model.ReservationStatus]int)
	for rows.Next() {
		var status model.ReservationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
