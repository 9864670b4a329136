package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tutorbook/internal/metrics"
	"tutorbook/internal/models"
	"tutorbook/internal/schedule"
)

// handleEnrollments seeds enrollment records. Identity management lives
// outside this service; this endpoint only grants booking access.
// POST /api/enrollments
func (s *HTTPServer) handleEnrollments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("enrollments")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var enr models.Enrollment
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&enr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if enr.StudentID == 0 || enr.BatchID == 0 {
		writeError(w, http.StatusBadRequest, "student_id and batch_id are required")
		return
	}
	if _, err := time.Parse(schedule.DateLayout, enr.ExpiryDate); err != nil {
		writeError(w, http.StatusBadRequest, "invalid expiry_date format; expected YYYY-MM-DD")
		return
	}

	if err := s.enrollments.CreateEnrollment(r.Context(), &enr); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, enr)
}

// handleEnrollmentByID returns one enrollment.
// GET /api/enrollments/{id}
func (s *HTTPServer) handleEnrollmentByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("enrollment_by_id")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idPart := strings.TrimPrefix(r.URL.Path, "/api/enrollments/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid enrollment id")
		return
	}

	enr, err := s.enrollments.GetEnrollment(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enr)
}
