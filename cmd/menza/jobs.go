package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"menza/internal/audit"
	"menza/internal/config"
	"menza/internal/db"
	"menza/internal/metrics"
	"menza/internal/model"
	"menza/internal/slots"
)

const reservationGaugeInterval = time.Minute

// startScheduler registers the periodic jobs and starts the scheduler.
func startScheduler(ctx context.Context, cfg *config.Config, clock clockwork.Clock, database *db.DB, exporter *audit.Exporter, logger *zerolog.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithClock(clock), gocron.WithLocation(time.Local))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	if cfg.Backup.Enabled {
		at, err := atTime(cfg.BackupAt())
		if err != nil {
			return nil, fmt.Errorf("backup.at: %w", err)
		}
		backups := db.NewBackupService(database, cfg.BackupPath(), cfg.Backup.RetentionDays, logger)
		_, err = s.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(at)),
			gocron.NewTask(func() {
				if _, err := backups.PerformBackup(ctx); err != nil {
					metrics.IncBackup("error")
					logger.Error().Err(err).Msg("Database backup failed")
					return
				}
				metrics.IncBackup("ok")
				if n := backups.CleanupOldBackups(); n > 0 {
					logger.Info().Int("removed", n).Msg("Old backups removed")
				}
			}),
			gocron.WithName("backup"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule backup: %w", err)
		}
	}

	if cfg.Audit.Enabled {
		at, err := atTime(cfg.AuditAt())
		if err != nil {
			return nil, fmt.Errorf("audit.at: %w", err)
		}
		_, err = s.NewJob(
			gocron.MonthlyJob(1, gocron.NewDaysOfTheMonth(cfg.AuditDayOfMonth()), gocron.NewAtTimes(at)),
			gocron.NewTask(func() {
				if _, err := exporter.ExportPreviousMonth(ctx); err != nil {
					logger.Error().Err(err).Msg("Monthly audit export failed")
				}
			}),
			gocron.WithName("audit-export"),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule audit export: %w", err)
		}
	}

	_, err = s.NewJob(
		gocron.DurationJob(reservationGaugeInterval),
		gocron.NewTask(func() {
			counts, err := database.CountReservations(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to count reservations")
				return
			}
			for _, status := range []model.ReservationStatus{model.StatusActive, model.StatusCancelled} {
				metrics.SetReservations(string(status), counts[status])
			}
		}),
		gocron.WithName("reservation-gauge"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule reservation gauge: %w", err)
	}

	s.Start()
	return s, nil
}

func atTime(s string) (gocron.AtTime, error) {
	t, err := slots.ParseTimeOfDay(s)
	if err != nil {
		return nil, err
	}
	return gocron.NewAtTime(uint(int(t)/60), uint(t.Minute()), 0), nil
}
