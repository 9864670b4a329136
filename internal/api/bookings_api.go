package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"tutorbook/internal/database"
	"tutorbook/internal/metrics"
	"tutorbook/internal/models"
	"tutorbook/internal/service"
)

// CancelRequest is the request body for cancelling a booking.
type CancelRequest struct {
	ActorRole string `json:"actor_role"` // "student", "admin" or "system"
	ActorID   int64  `json:"actor_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// handleBookings creates a single booking or lists bookings.
// POST /api/bookings
// GET  /api/bookings?slot_id=&enrollment_id=&status=&from=&to=&package_group=
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	switch r.Method {
	case http.MethodPost:
		s.createBooking(w, r)
	case http.MethodGet:
		s.listBookings(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	var req service.SingleBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SlotID == 0 || req.EnrollmentID == 0 || req.Date == "" {
		writeError(w, http.StatusBadRequest, "slot_id, enrollment_id and date are required")
		return
	}

	booking, err := s.booking.BookSingle(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.BookingFilter{
		SlotID:       parseID(q.Get("slot_id")),
		EnrollmentID: parseID(q.Get("enrollment_id")),
		DateFrom:     q.Get("from"),
		DateTo:       q.Get("to"),
		PackageGroup: q.Get("package_group"),
	}
	if status := q.Get("status"); status != "" {
		filter.Statuses = strings.Split(status, ",")
	}

	bookings, err := s.booking.ListBookings(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// handleWeeklyPackage books a weekly package across a date range.
// POST /api/bookings/weekly
func (s *HTTPServer) handleWeeklyPackage(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_weekly")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req service.WeeklyBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SlotID == 0 || req.EnrollmentID == 0 || req.StartDate == "" || req.EndDate == "" {
		writeError(w, http.StatusBadRequest, "slot_id, enrollment_id, start_date and end_date are required")
		return
	}

	result, err := s.booking.BookWeeklyPackage(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	// A package that booked nothing is still a 200: the caller gets the
	// full per-date breakdown and decides what to do.
	status := http.StatusCreated
	if len(result.Booked) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// handleBookingByID routes booking mutations addressed by id.
// DELETE /api/bookings/{id}         cancel
// POST   /api/bookings/{id}/no-show mark missed
func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking_by_id")

	rest := strings.TrimPrefix(r.URL.Path, "/api/bookings/")
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		s.cancelBooking(w, r, id)
	case action == "no-show" && r.Method == http.MethodPost:
		if err := s.booking.MarkNoShow(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) cancelBooking(w http.ResponseWriter, r *http.Request, id int64) {
	var req CancelRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	actor := service.Actor{Role: req.ActorRole, ID: req.ActorID}
	switch actor.Role {
	case service.RoleStudent, service.RoleAdmin, service.RoleSystem:
	default:
		writeError(w, http.StatusBadRequest, "actor_role must be student, admin or system")
		return
	}

	booking, err := s.booking.Cancel(r.Context(), id, actor, req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}
