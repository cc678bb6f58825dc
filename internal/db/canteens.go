package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"menza/internal/model"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetCanteen returns a canteen with its working hours loaded.
func (db *DB) GetCanteen(ctx context.Context, id int64) (*model.Canteen, error) {
	return getCanteen(ctx, db, id)
}

func getCanteen(ctx context.Context, q queryer, id int64) (*model.Canteen, error) {
	var c model.Canteen
	err := q.QueryRowContext(ctx, `
		SELECT id, name, location, capacity, created_at, updated_at
		FROM canteens WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &c.Location, &c.Capacity, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}

	hours, err := workingHours(ctx, q, "WHERE canteen_id = ?", id)
	if err != nil {
		return nil, err
	}
	c.WorkingHours = hours[id]
	return &c, nil
}

// ListCanteens returns all canteens ordered by id, each with its working hours.
func (db *DB) ListCanteens(ctx context.Context) ([]model.Canteen, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, location, capacity, created_at, updated_at
		FROM canteens ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list canteens: %w", err)
	}
	defer rows.Close()

	var canteens []model.Canteen
	for rows.Next() {
		var c model.Canteen
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.Capacity, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		canteens = append(canteens, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hours, err := workingHours(ctx, db, "")
	if err != nil {
		return nil, err
	}
	for i := range canteens {
		canteens[i].WorkingHours = hours[canteens[i].ID]
	}
	return canteens, nil
}

// workingHours loads windows grouped by canteen, in insertion order.
func workingHours(ctx context.Context, q queryer, where string, args ...any) (map[int64][]model.WorkingHour, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, canteen_id, meal, from_time, to_time FROM working_hours "+where+" ORDER BY canteen_id, id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]model.WorkingHour)
	for rows.Next() {
		var wh model.WorkingHour
		if err := rows.Scan(&wh.ID, &wh.CanteenID, &wh.Meal, &wh.From, &wh.To); err != nil {
			return nil, err
		}
		out[wh.CanteenID] = append(out[wh.CanteenID], wh)
	}
	return out, rows.Err()
}

// CreateCanteen inserts a canteen and its working hours and assigns ids.
func (db *DB) CreateCanteen(ctx context.Context, c *model.Canteen) error {
	if c == nil {
		return fmt.Errorf("canteen is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", translate(err))
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO canteens (name, location, capacity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Location, c.Capacity, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert canteen: %w", translate(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if err := replaceWorkingHours(ctx, tx, id, c.WorkingHours); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}

	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	for i := range c.WorkingHours {
		c.WorkingHours[i].CanteenID = id
	}
	return nil
}

// UpdateCanteen persists name, location and capacity. Working hours are replaced when
// c.WorkingHours is non-nil.
func (db *DB) UpdateCanteen(ctx context.Context, c *model.Canteen) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", translate(err))
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE canteens SET name = ?, location = ?, capacity = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Location, c.Capacity, now, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update canteen %d: %w", c.ID, translate(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if c.WorkingHours != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM working_hours WHERE canteen_id = ?`, c.ID); err != nil {
			return fmt.Errorf("clear working hours: %w", translate(err))
		}
		if err := replaceWorkingHours(ctx, tx, c.ID, c.WorkingHours); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	c.UpdatedAt = now
	return nil
}

func replaceWorkingHours(ctx context.Context, tx *sql.Tx, canteenID int64, hours []model.WorkingHour) error {
	for i := range hours {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO working_hours (canteen_id, meal, from_time, to_time)
			VALUES (?, ?, ?, ?)`,
			canteenID, hours[i].Meal, hours[i].From, hours[i].To,
		)
		if err != nil {
			return fmt.Errorf("insert working hour: %w", translate(err))
		}
		if hours[i].ID, err = res.LastInsertId(); err != nil {
			return err
		}
		hours[i].CanteenID = canteenID
	}
	return nil
}

// DeleteCanteenCascadeCancel cancels every active reservation of the canteen and then
// removes the canteen and its working hours, in one transaction. Reservation rows are kept.
// It returns the number of reservations cancelled.
func (db *DB) DeleteCanteenCascadeCancel(ctx context.Context, id int64) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", translate(err))
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE reservations SET status = ?, updated_at = ?
		WHERE canteen_id = ? AND status = ?`,
		model.StatusCancelled, time.Now(), id, model.StatusActive,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel reservations of canteen %d: %w", id, translate(err))
	}
	cancelled, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM canteens WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete canteen %d: %w", id, translate(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", translate(err))
	}
	return cancelled, nil
}
