package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"menza/internal/apperr"
	"menza/internal/audit"
	"menza/internal/db"
	"menza/internal/model"
	"menza/internal/slots"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleListReservations lists reservations, optionally filtered.
// GET /api/reservations?studentId=&canteenId=&status=active|cancelled&from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	filter, err := reservationFilter(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	res, err := s.reservations.ListReservations(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponses(res))
}

func reservationFilter(r *http.Request) (db.ReservationFilter, error) {
	q := r.URL.Query()
	var f db.ReservationFilter
	badParams := apperr.New(apperr.BadRequest, "Invalid query parameters.")

	for name, dst := range map[string]*int64{"studentId": &f.StudentID, "canteenId": &f.CanteenID} {
		if v := q.Get(name); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return f, badParams
			}
			*dst = id
		}
	}

	switch status := strings.ToLower(q.Get("status")); status {
	case "":
	case string(model.StatusActive), string(model.StatusCancelled):
		f.Status = model.ReservationStatus(status)
	default:
		return f, badParams
	}

	if v := q.Get("from"); v != "" {
		d, err := slots.ParseDate(v)
		if err != nil {
			return f, badParams
		}
		f.DateFrom = d
	}
	if v := q.Get("to"); v != "" {
		d, err := slots.ParseDate(v)
		if err != nil {
			return f, badParams
		}
		f.DateTo = d
	}
	return f, nil
}

// GET /api/reservations/{id}
func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	res, err := s.reservations.GetReservation(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

// handleCreateReservation admits a reservation.
// POST /api/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	res, err := s.reservations.CreateReservation(r.Context(), req.toBooking())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/reservations/%d", res.ID))
	writeJSON(w, http.StatusCreated, toReservationResponse(res))
}

// handleUpdateReservation is an administrative correction without admission checks.
// PUT /api/reservations/{id}
func (s *HTTPServer) handleUpdateReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	var req reservationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if _, err := s.reservations.UpdateReservation(r.Context(), id, req.toBooking()); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCancelReservation cancels a reservation on behalf of its owner.
// DELETE /api/reservations/{id}
func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	caller, err := callerID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	res, err := s.reservations.CancelReservation(r.Context(), id, caller)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

// handleExportReservations streams a month of reservations as XLSX. Admins only.
// GET /api/reservations/export?month=YYYY-MM
func (s *HTTPServer) handleExportReservations(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "export is disabled")
		return
	}
	caller, err := callerID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	forbidden := apperr.New(apperr.Forbidden, "Only an admin can export reservations.")
	student, err := s.directory.GetStudent(r.Context(), caller)
	if err != nil {
		if apperr.IsKind(err, apperr.StudentNotFound) {
			err = forbidden
		}
		s.writeAppError(w, r, err)
		return
	}
	if !student.IsAdmin {
		s.writeAppError(w, r, forbidden)
		return
	}

	month, err := audit.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		s.writeAppError(w, r, apperr.New(apperr.InvalidFormat, "Invalid month format; expected YYYY-MM"))
		return
	}

	var buf bytes.Buffer
	n, err := s.reports.ExportMonth(r.Context(), month, &buf)
	if err != nil {
		s.writeAppError(w, r, fmt.Errorf("export reservations: %w", err))
		return
	}

	s.log.Info().Int64("by", caller).Str("month", month.Format("2006-01")).Int("reservations", n).Msg("reservations exported")
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", audit.Filename(month)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
