package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const backupPrefix = "menza_"

// BackupService writes consistent snapshots of the database and prunes old ones.
type BackupService struct {
	db            *DB
	storagePath   string
	retentionDays int
	logger        *zerolog.Logger
	now           func() time.Time
}

func NewBackupService(db *DB, storagePath string, retentionDays int, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:            db,
		storagePath:   storagePath,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// PerformBackup snapshots the live database with VACUUM INTO, which is safe under WAL
// while writers are active. It returns the path of the new file.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.storagePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupPath := filepath.Join(s.storagePath, fmt.Sprintf("%s%s.db", backupPrefix, s.now().Format("20060102_150405")))
	s.logger.Info().Str("path", backupPath).Msg("Performing database backup")

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", backupPath, err)
	}

	s.logger.Info().Msg("Backup completed successfully")
	return backupPath, nil
}

// CleanupOldBackups removes snapshots older than the retention window and returns how many
// were deleted. Files not written by PerformBackup are left alone.
func (s *BackupService) CleanupOldBackups() int {
	if s.retentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.storagePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.storagePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed
}
