// Package audit exports a month of reservation history to an XLSX workbook.
package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"menza/internal/db"
	"menza/internal/model"
	"menza/internal/slots"
)

const monthLayout = "2006-01"

// Source provides the rows exported to the workbook.
type Source interface {
	ListReservations(ctx context.Context, f db.ReservationFilter) ([]model.Reservation, error)
	ListCanteens(ctx context.Context) ([]model.Canteen, error)
	ListStudents(ctx context.Context) ([]model.Student, error)
}

// Exporter builds monthly reservation reports.
type Exporter struct {
	source    Source
	newWriter func() ExcelWriter
	exportDir string
	clock     clockwork.Clock
	logger    zerolog.Logger
}

// NewExporter creates an exporter writing scheduled reports to exportDir.
func NewExporter(source Source, exportDir string, clock clockwork.Clock, logger *zerolog.Logger) *Exporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Exporter{
		source:    source,
		newWriter: NewExcelizeWriter,
		exportDir: exportDir,
		clock:     clock,
		logger:    logger.With().Str("component", "audit").Logger(),
	}
}

// ParseMonth parses "YYYY-MM" into the first day of that month, UTC.
func ParseMonth(s string) (time.Time, error) {
	return time.Parse(monthLayout, s)
}

// Filename is the report name for a month, e.g. "reservations_2026-02.xlsx".
func Filename(month time.Time) string {
	return fmt.Sprintf("reservations_%s.xlsx", month.Format(monthLayout))
}

// ExportMonth writes every reservation dated within month to w: one row per reservation
// and a per-canteen summary sheet.
func (e *Exporter) ExportMonth(ctx context.Context, month time.Time, w io.Writer) (int, error) {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	reservations, err := e.source.ListReservations(ctx, db.ReservationFilter{DateFrom: from, DateTo: to})
	if err != nil {
		return 0, fmt.Errorf("load reservations: %w", err)
	}
	canteens, err := e.source.ListCanteens(ctx)
	if err != nil {
		return 0, fmt.Errorf("load canteens: %w", err)
	}
	students, err := e.source.ListStudents(ctx)
	if err != nil {
		return 0, fmt.Errorf("load students: %w", err)
	}

	canteenNames := make(map[int64]string, len(canteens))
	for _, c := range canteens {
		canteenNames[c.ID] = c.Name
	}
	studentsByID := make(map[int64]model.Student, len(students))
	for _, s := range students {
		studentsByID[s.ID] = s
	}

	excel := e.newWriter()
	defer func() { _ = excel.Close() }()

	if err := excel.AddSheet("Reservations"); err != nil {
		return 0, err
	}
	if err := excel.WriteHeader([]string{
		"ID", "Student ID", "Student", "Email", "Canteen ID", "Canteen", "Date", "Time", "Duration", "Status",
	}); err != nil {
		return 0, err
	}

	type tally struct{ active, cancelled int }
	perCanteen := make(map[int64]*tally)
	var order []int64

	for _, r := range reservations {
		student := studentsByID[r.StudentID]
		name, ok := canteenNames[r.CanteenID]
		if !ok {
			name = "(deleted)"
		}
		if err := excel.WriteRow([]any{
			r.ID, r.StudentID, student.Name, student.Email, r.CanteenID, name,
			slots.FormatDate(r.Date), r.Time, r.Duration, string(r.Status),
		}); err != nil {
			return 0, err
		}

		t, ok := perCanteen[r.CanteenID]
		if !ok {
			t = &tally{}
			perCanteen[r.CanteenID] = t
			order = append(order, r.CanteenID)
		}
		if r.IsActive() {
			t.active++
		} else {
			t.cancelled++
		}
	}

	if err := excel.AddSheet("Summary"); err != nil {
		return 0, err
	}
	if err := excel.WriteHeader([]string{"Canteen ID", "Canteen", "Active", "Cancelled"}); err != nil {
		return 0, err
	}
	for _, id := range order {
		name, ok := canteenNames[id]
		if !ok {
			name = "(deleted)"
		}
		t := perCanteen[id]
		if err := excel.WriteRow([]any{id, name, t.active, t.cancelled}); err != nil {
			return 0, err
		}
	}

	if err := excel.Save(w); err != nil {
		return 0, fmt.Errorf("save excel: %w", err)
	}
	return len(reservations), nil
}

// ExportPreviousMonth writes last month's report into the export directory and returns its path.
func (e *Exporter) ExportPreviousMonth(ctx context.Context) (string, error) {
	now := e.clock.Now()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	if err := os.MkdirAll(e.exportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(e.exportDir, Filename(month))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	n, err := e.ExportMonth(ctx, month, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}

	e.logger.Info().Str("path", path).Int("reservations", n).Msg("Audit report written")
	return path, nil
}
