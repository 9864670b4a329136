package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"tutorbook/internal/metrics"
	"tutorbook/internal/models"
	"tutorbook/internal/service"
)

// handleSlots lists or creates slot definitions.
// GET  /api/slots?batch_id=
// POST /api/slots
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")
	switch r.Method {
	case http.MethodGet:
		batchID := parseID(r.URL.Query().Get("batch_id"))
		if batchID == 0 {
			writeError(w, http.StatusBadRequest, "batch_id is required")
			return
		}
		slots, err := s.slots.ListActive(r.Context(), batchID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if slots == nil {
			slots = []models.SlotDefinition{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"slots": slots})

	case http.MethodPost:
		var slot models.SlotDefinition
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&slot); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.slots.Create(r.Context(), &slot); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, slot)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSlotByID updates or deactivates one slot definition.
// GET    /api/slots/{id}
// PUT    /api/slots/{id}
// DELETE /api/slots/{id}?force=true
func (s *HTTPServer) handleSlotByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slot_by_id")

	idPart := strings.TrimPrefix(r.URL.Path, "/api/slots/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		slot, err := s.slots.Get(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, slot)

	case http.MethodPut:
		var slot models.SlotDefinition
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&slot); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		slot.ID = id
		if err := s.slots.Update(r.Context(), &slot); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, slot)

	case http.MethodDelete:
		force := r.URL.Query().Get("force") == "true"
		result, err := s.booking.DeactivateSlot(r.Context(), id, force, service.Actor{Role: service.RoleAdmin})
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
