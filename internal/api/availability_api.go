package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tutorbook/internal/metrics"
	"tutorbook/internal/schedule"
)

// AvailabilityRequest is the request body for POST /api/availability.
type AvailabilityRequest struct {
	BatchID   int64  `json:"batch_id"`
	WeekStart string `json:"week_start"`         // Format: YYYY-MM-DD, any day of the week
	Timezone  string `json:"timezone,omitempty"` // Optional IANA override for display
}

// handleAvailability returns the week's slot availability for a batch.
// POST /api/availability
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req AvailabilityRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.BatchID == 0 {
		writeError(w, http.StatusBadRequest, "batch_id is required")
		return
	}
	// The date string is handed through as-is: the engine interprets it as
	// a local calendar date per slot, not a UTC instant.
	if _, err := time.Parse(schedule.DateLayout, req.WeekStart); err != nil {
		writeError(w, http.StatusBadRequest, "invalid week_start format; expected YYYY-MM-DD")
		return
	}

	cacheKey := fmt.Sprintf("availability:%d:%s:%s", req.BatchID, req.WeekStart, req.Timezone)
	if cached, ok := s.cachedAvailability(r.Context(), cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	}

	view, err := s.booking.WeekAvailability(r.Context(), req.BatchID, req.WeekStart, req.Timezone)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.storeAvailability(r.Context(), cacheKey, view)
	writeJSON(w, http.StatusOK, view)
}

// cachedAvailability looks the week view up in redis. Cache misses and redis
// errors both fall through to a live computation.
func (s *HTTPServer) cachedAvailability(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *HTTPServer) storeAvailability(ctx context.Context, key string, view *schedule.WeekView) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache availability")
	}
}
