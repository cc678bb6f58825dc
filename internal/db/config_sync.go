package db

import (
	"context"
	"fmt"
	"time"

	"menza/internal/config"
)

// SyncCanteensFromConfig applies canteens.yaml to the database in one transaction.
// Canteens are upserted by id and their working hours replaced. Canteens missing from the
// file are left untouched, and reservations are never modified.
// It returns the ids of the canteens written.
func (db *DB) SyncCanteensFromConfig(ctx context.Context, cfg *config.CanteensConfig) ([]int64, error) {
	if cfg == nil {
		return nil, fmt.Errorf("canteen config is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", translate(err))
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	ids := make([]int64, 0, len(cfg.Canteens))
	for _, cn := range cfg.Canteens {
		c := cn.Model()

		// Preserve created_at if the canteen already exists.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO canteens (id, name, location, capacity, created_at, updated_at)
			VALUES (?, ?, ?, ?, COALESCE((SELECT created_at FROM canteens WHERE id = ?), ?), ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				location = excluded.location,
				capacity = excluded.capacity,
				updated_at = excluded.updated_at`,
			c.ID, c.Name, c.Location, c.Capacity, c.ID, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("sync canteen %d: %w", c.ID, translate(err))
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM working_hours WHERE canteen_id = ?`, c.ID); err != nil {
			return nil, fmt.Errorf("clear working hours of canteen %d: %w", c.ID, translate(err))
		}
		if err := replaceWorkingHours(ctx, tx, c.ID, c.WorkingHours); err != nil {
			return nil, fmt.Errorf("sync canteen %d hours: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", translate(err))
	}

	db.logger.Info().Int("canteens", len(ids)).Msg("Canteens synced from config")
	return ids, nil
}
