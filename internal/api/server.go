// Package api exposes the booking engine over HTTP: availability lookup,
// booking and cancellation, slot administration and workbook export.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tutorbook/internal/database"
	"tutorbook/internal/models"
	"tutorbook/internal/service"
)

// TableExporter is the slice of the database the export endpoint needs.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// EnrollmentStore is the slice of the database the seeding endpoints need.
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	GetEnrollment(ctx context.Context, id int64) (*models.Enrollment, error)
}

// Store combines the direct database access the API uses alongside the
// service layer. *database.DB satisfies it.
type Store interface {
	TableExporter
	EnrollmentStore
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	booking     *service.BookingService
	slots       *service.SlotService
	exporter    TableExporter
	enrollments EnrollmentStore
	cache       *redis.Client
	cacheTTL    time.Duration
	apiKey      string
	limiter     *rate.Limiter
	log         *zerolog.Logger
}

// Options carries the optional pieces of the server: API key auth, request
// rate limiting and the redis availability cache. Zero values disable each.
type Options struct {
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	Cache             *redis.Client
	CacheTTL          time.Duration
}

// NewHTTPServer wires the API over the service layer.
func NewHTTPServer(booking *service.BookingService, slots *service.SlotService, store Store, opts Options, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		booking:     booking,
		slots:       slots,
		exporter:    store,
		enrollments: store,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
		apiKey:      opts.APIKey,
		log:         logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return s
}

// Handler builds the route table.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/availability", s.handleAvailability)
	mux.HandleFunc("/api/bookings", s.handleBookings)
	mux.HandleFunc("/api/bookings/weekly", s.handleWeeklyPackage)
	mux.HandleFunc("/api/bookings/", s.handleBookingByID)
	mux.HandleFunc("/api/slots", s.handleSlots)
	mux.HandleFunc("/api/slots/", s.handleSlotByID)
	mux.HandleFunc("/api/enrollments", s.handleEnrollments)
	mux.HandleFunc("/api/enrollments/", s.handleEnrollmentByID)
	mux.HandleFunc("/api/export/bookings", s.handleExport)
	return s.guard(mux)
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *HTTPServer) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	s.log.Info().Str("addr", addr).Msg("API server started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// guard applies API-key auth and the request rate limit to every route.
func (s *HTTPServer) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeServiceError maps engine errors onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var (
		ve   *service.ValidationError
		ne   *service.NotEligibleError
		fe   *service.ForbiddenError
		busy *service.SlotBusyError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Reason)
	case errors.As(err, &ne):
		writeError(w, http.StatusUnprocessableEntity, ne.Reason)
	case errors.As(err, &fe):
		writeError(w, http.StatusForbidden, fe.Reason)
	case errors.As(err, &busy):
		writeError(w, http.StatusConflict, busy.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrAlreadyBooked):
		writeError(w, http.StatusConflict, "enrollment already holds this occurrence")
	case errors.Is(err, database.ErrCapacityFull):
		writeError(w, http.StatusConflict, "no spots left")
	case errors.Is(err, database.ErrDuplicateSlot):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "booking is already in a terminal state")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
