package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate")
	// ErrReferenced is returned when a foreign key rejects a write or delete.
	ErrReferenced = errors.New("referenced by other rows")
	// ErrNotActive is returned when a status change targets a reservation that is no longer active.
	ErrNotActive = errors.New("reservation is not active")
	// ErrBusy is returned when the database stayed locked past the busy timeout.
	ErrBusy = errors.New("database is busy")
)

// DB wraps sql.DB for the reservation store.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// Open opens the database at path and runs migrations.
// Write transactions take the RESERVED lock at BEGIN, so admission checks and inserts serialize.
func Open(path string, logger *zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, path: path, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS canteens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			location TEXT NOT NULL,
			capacity INTEGER NOT NULL CHECK (capacity > 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS working_hours (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			canteen_id INTEGER NOT NULL,
			meal TEXT NOT NULL,
			from_time TEXT NOT NULL,
			to_time TEXT NOT NULL,
			FOREIGN KEY (canteen_id) REFERENCES canteens(id) ON DELETE CASCADE
		)`,

		// canteen_id is deliberately not a foreign key: reservations outlive their canteen.
		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id INTEGER NOT NULL,
			canteen_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			duration INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (student_id) REFERENCES students(id) ON DELETE RESTRICT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_working_hours_canteen ON working_hours(canteen_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_canteen_date ON reservations(canteen_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_student_date ON reservations(student_id, date, status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey,
			// ON DELETE RESTRICT fails as a trigger constraint. The schema defines no triggers.
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintTrigger:
			return fmt.Errorf("%w: %v", ErrReferenced, err)
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}
	return err
}
