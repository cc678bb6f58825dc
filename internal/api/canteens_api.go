package api

import (
	"fmt"
	"net/http"
	"strconv"

	"menza/internal/booking"
)

// handleListCanteens returns all canteens.
// GET /api/canteens
func (s *HTTPServer) handleListCanteens(w http.ResponseWriter, r *http.Request) {
	canteens, err := s.directory.ListCanteens(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]canteenResponse, 0, len(canteens))
	for i := range canteens {
		out = append(out, toCanteenResponse(&canteens[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/canteens/{id}
func (s *HTTPServer) handleGetCanteen(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	c, err := s.directory.GetCanteen(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCanteenResponse(c))
}

// POST /api/canteens
func (s *HTTPServer) handleCreateCanteen(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	var req createCanteenRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	c, err := s.directory.CreateCanteen(r.Context(), req.toInput(), caller)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/canteens/%d", c.ID))
	writeJSON(w, http.StatusCreated, toCanteenResponse(c))
}

// PUT /api/canteens/{id}
func (s *HTTPServer) handleUpdateCanteen(w http.ResponseWriter, r *http.Request) {
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
	var req updateCanteenRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	c, err := s.directory.UpdateCanteen(r.Context(), id, req.toPatch(), caller)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCanteenResponse(c))
}

// handleDeleteCanteen cancels the canteen's active reservations and removes it.
// DELETE /api/canteens/{id}
func (s *HTTPServer) handleDeleteCanteen(w http.ResponseWriter, r *http.Request) {
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
	if err := s.directory.DeleteCanteen(r.Context(), id, caller); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func availabilityQuery(r *http.Request) booking.AvailabilityRequest {
	q := r.URL.Query()
	// A missing or malformed duration is rejected by validation as 0.
	duration, _ := strconv.Atoi(q.Get("duration"))
	return booking.AvailabilityRequest{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		StartTime: q.Get("startTime"),
		EndTime:   q.Get("endTime"),
		Duration:  duration,
	}
}

// handleCanteensStatus returns slot availability for every canteen.
// GET /api/canteens/status?startDate=&endDate=&startTime=&endTime=&duration=
func (s *HTTPServer) handleCanteensStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.reservations.AllCanteensStatus(r.Context(), availabilityQuery(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]canteenStatusResponse, 0, len(statuses))
	for i := range statuses {
		out = append(out, toCanteenStatusResponse(&statuses[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/canteens/{id}/status
func (s *HTTPServer) handleCanteenStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	status, err := s.reservations.CanteenStatus(r.Context(), id, availabilityQuery(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCanteenStatusResponse(status))
}
