// Package api exposes the reservation system over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"menza/internal/booking"
	"menza/internal/config"
	"menza/internal/db"
	"menza/internal/manager"
	"menza/internal/model"
)

// Reservations is the reservation core used by the handlers.
type Reservations interface {
	CreateReservation(ctx context.Context, req booking.ReservationRequest) (*model.Reservation, error)
	CancelReservation(ctx context.Context, id, studentID int64) (*model.Reservation, error)
	UpdateReservation(ctx context.Context, id int64, req booking.ReservationRequest) (*model.Reservation, error)
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	ListReservations(ctx context.Context, f db.ReservationFilter) ([]model.Reservation, error)
	CanteenStatus(ctx context.Context, id int64, req booking.AvailabilityRequest) (*booking.CanteenStatus, error)
	AllCanteensStatus(ctx context.Context, req booking.AvailabilityRequest) ([]booking.CanteenStatus, error)
}

// Directory manages canteens and students.
type Directory interface {
	GetCanteen(ctx context.Context, id int64) (*model.Canteen, error)
	ListCanteens(ctx context.Context) ([]model.Canteen, error)
	CreateCanteen(ctx context.Context, in *manager.CanteenInput, requesterID int64) (*model.Canteen, error)
	UpdateCanteen(ctx context.Context, id int64, patch *manager.CanteenPatch, requesterID int64) (*model.Canteen, error)
	DeleteCanteen(ctx context.Context, id int64, requesterID int64) error

	GetStudent(ctx context.Context, id int64) (*model.Student, error)
	ListStudents(ctx context.Context) ([]model.Student, error)
	CreateStudent(ctx context.Context, in manager.StudentInput) (*model.Student, error)
	UpdateStudent(ctx context.Context, id int64, in manager.StudentInput) (*model.Student, error)
	DeleteStudent(ctx context.Context, id int64) error
}

// Reports renders the monthly reservation export.
type Reports interface {
	ExportMonth(ctx context.Context, month time.Time, w io.Writer) (int, error)
}

// HTTPServer serves the public JSON API.
type HTTPServer struct {
	reservations Reservations
	directory    Directory
	reports      Reports
	limiter      *clientLimiter
	log          zerolog.Logger
	server       *http.Server
}

// NewHTTPServer wires handlers and middleware. reports may be nil, which disables the export route.
func NewHTTPServer(cfg *config.Config, reservations Reservations, directory Directory, reports Reports, logger *zerolog.Logger) *HTTPServer {
	rps, burst := cfg.RateLimit()
	s := &HTTPServer{
		reservations: reservations,
		directory:    directory,
		reports:      reports,
		limiter:      newClientLimiter(rps, burst),
		log:          logger.With().Str("component", "api").Logger(),
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort()),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/canteens", s.handleListCanteens)
	mux.HandleFunc("POST /api/canteens", s.handleCreateCanteen)
	mux.HandleFunc("GET /api/canteens/status", s.handleCanteensStatus)
	mux.HandleFunc("GET /api/canteens/{id}", s.handleGetCanteen)
	mux.HandleFunc("PUT /api/canteens/{id}", s.handleUpdateCanteen)
	mux.HandleFunc("DELETE /api/canteens/{id}", s.handleDeleteCanteen)
	mux.HandleFunc("GET /api/canteens/{id}/status", s.handleCanteenStatus)

	mux.HandleFunc("GET /api/reservations", s.handleListReservations)
	mux.HandleFunc("POST /api/reservations", s.handleCreateReservation)
	mux.HandleFunc("GET /api/reservations/export", s.handleExportReservations)
	mux.HandleFunc("GET /api/reservations/{id}", s.handleGetReservation)
	mux.HandleFunc("PUT /api/reservations/{id}", s.handleUpdateReservation)
	mux.HandleFunc("DELETE /api/reservations/{id}", s.handleCancelReservation)

	mux.HandleFunc("GET /api/students", s.handleListStudents)
	mux.HandleFunc("POST /api/students", s.handleCreateStudent)
	mux.HandleFunc("GET /api/students/{id}", s.handleGetStudent)
	mux.HandleFunc("PUT /api/students/{id}", s.handleUpdateStudent)
	mux.HandleFunc("DELETE /api/students/{id}", s.handleDeleteStudent)

	return s.recoverer(s.requestID(s.rateLimit(s.instrument(mux))))
}

// Start serves until ctx is cancelled, then shuts down within shutdownTimeout.
func (s *HTTPServer) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http api: %w", err)
	}
	return nil
}
