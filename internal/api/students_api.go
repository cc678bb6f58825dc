package api

import (
	"fmt"
	"net/http"
)

// GET /api/students
func (s *HTTPServer) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.directory.ListStudents(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]studentResponse, 0, len(students))
	for i := range students {
		out = append(out, toStudentResponse(&students[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/students/{id}
func (s *HTTPServer) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	st, err := s.directory.GetStudent(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(st))
}

// POST /api/students
func (s *HTTPServer) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	st, err := s.directory.CreateStudent(r.Context(), req.toInput())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/students/%d", st.ID))
	writeJSON(w, http.StatusCreated, toStudentResponse(st))
}

// PUT /api/students/{id}
func (s *HTTPServer) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	var req studentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if _, err := s.directory.UpdateStudent(r.Context(), id, req.toInput()); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/students/{id}
func (s *HTTPServer) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.directory.DeleteStudent(r.Context(), id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
