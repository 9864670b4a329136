package api

import (
	"fmt"
	"net/http"
	"time"

	"tutorbook/internal/export"
	"tutorbook/internal/metrics"
)

// handleExport streams an Excel workbook with every table of the engine.
// GET /api/export/bookings
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filename := fmt.Sprintf("bookings_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := export.BuildWorkbook(r.Context(), s.exporter, w); err != nil {
		// Headers are already out; the truncated stream is all we can
		// signal with.
		s.log.Error().Err(err).Msg("workbook export failed")
	}
}
