// Package service implements the booking transaction engine: single and
// weekly-package booking, cancellation, slot deactivation cascades and the
// live availability view. All storage writes go through atomic conditional
// statements in the database layer; the service never does check-then-insert.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tutorbook/internal/database"
	"tutorbook/internal/events"
	"tutorbook/internal/metrics"
	"tutorbook/internal/models"
	"tutorbook/internal/schedule"
)

// Actor roles recognized by the engine.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
	RoleSystem  = "system"
)

// Actor identifies who is performing an operation.
type Actor struct {
	Role string
	ID   int64
}

func (a Actor) String() string {
	if a.ID == 0 {
		return a.Role
	}
	return fmt.Sprintf("%s:%d", a.Role, a.ID)
}

// Repository is the storage contract the engine depends on. *database.DB
// satisfies it; tests substitute a mock.
type Repository interface {
	GetSlot(ctx context.Context, id int64) (*models.SlotDefinition, error)
	ListActiveSlots(ctx context.Context, batchID int64) ([]models.SlotDefinition, error)
	SetSlotActive(ctx context.Context, id int64, active bool) error

	GetEnrollment(ctx context.Context, id int64) (*models.Enrollment, error)
	IncrementSessionsUsed(ctx context.Context, enrollmentID int64) error

	InsertBookingIfAbsent(ctx context.Context, slotID int64, occurrenceDate string, enrollmentID int64, maxOccupants int, attrs database.BookingAttrs) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64, cancelledBy, reason string, at time.Time) error
	MarkBookingStatus(ctx context.Context, id int64, status string) error
	CountBookings(ctx context.Context, slotID int64, occurrenceDate string, statuses []string) (int, error)
	ListBookings(ctx context.Context, filter database.BookingFilter) ([]models.Booking, error)
	ListFutureBooked(ctx context.Context, slotID int64, after time.Time) ([]models.Booking, error)
}

// EventPublisher decouples the engine from the event bus.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Policy holds the booking rules the engine enforces.
type Policy struct {
	MinAdvance        time.Duration
	SelfCancelNotice  time.Duration
	PackageWeeksLimit int
}

// BookingService coordinates calendar resolution, eligibility and atomic
// storage writes.
type BookingService struct {
	repo   Repository
	bus    EventPublisher
	policy Policy
	logger *zerolog.Logger
	now    func() time.Time
}

// NewBookingService constructs the engine. The clock defaults to time.Now
// and is overridden in tests.
func NewBookingService(repo Repository, bus EventPublisher, policy Policy, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:   repo,
		bus:    bus,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// SingleBookingRequest books one occurrence of a slot.
type SingleBookingRequest struct {
	SlotID       int64  `json:"slot_id"`
	EnrollmentID int64  `json:"enrollment_id"`
	Date         string `json:"date"` // "YYYY-MM-DD" in the slot's timezone
}

// WeeklyBookingRequest books the same slot every week across a date range.
type WeeklyBookingRequest struct {
	SlotID       int64  `json:"slot_id"`
	EnrollmentID int64  `json:"enrollment_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

// DateFailure records one occurrence a package could not book and why.
type DateFailure struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// PackageResult is the partial-success outcome of a weekly package. A package
// commits every occurrence it can and reports the rest; it is not
// all-or-nothing.
type PackageResult struct {
	PackageGroupID string        `json:"package_group_id"`
	RequestedEnd   string        `json:"requested_end"`
	EffectiveEnd   string        `json:"effective_end"`
	Clamped        bool          `json:"clamped"`
	Booked         []string      `json:"booked"`
	Skipped        []string      `json:"skipped,omitempty"`
	Failed         []DateFailure `json:"failed,omitempty"`
	Warning        string        `json:"warning,omitempty"`
}

// BookSingle creates one booking for the occurrence of the slot on the given
// local date. The date must fall on the slot's weekday.
func (s *BookingService) BookSingle(ctx context.Context, req SingleBookingRequest) (*models.Booking, error) {
	now := s.now()

	slot, enr, err := s.loadParticipants(ctx, req.SlotID, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	occ, err := s.occurrenceOn(slot, req.Date, now)
	if err != nil {
		return nil, err
	}

	booking, err := s.book(ctx, slot, enr, occ, now, database.BookingAttrs{
		StartsAt:    occ.StartsAt,
		BookingType: models.TypeSingle,
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCreated(models.TypeSingle)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("slot_id", slot.ID).
		Int64("enrollment_id", enr.ID).
		Str("date", occ.LocalDate).
		Msg("booking created")
	s.publishBookingEvent(events.TypeBookingCreated, booking)

	return booking, nil
}

// BookWeeklyPackage books the slot's occurrence every week from the start
// date through the end date, clamped to the enrollment expiry and the
// configured week limit. Occurrences the enrollment already holds are
// skipped; occurrences that fail a rule are recorded and the rest proceed.
func (s *BookingService) BookWeeklyPackage(ctx context.Context, req WeeklyBookingRequest) (*PackageResult, error) {
	now := s.now()

	if _, err := time.Parse(schedule.DateLayout, req.StartDate); err != nil {
		return nil, validationf("invalid start_date %q; expected YYYY-MM-DD", req.StartDate)
	}
	if _, err := time.Parse(schedule.DateLayout, req.EndDate); err != nil {
		return nil, validationf("invalid end_date %q; expected YYYY-MM-DD", req.EndDate)
	}
	if req.EndDate < req.StartDate {
		return nil, validationf("end_date %s is before start_date %s", req.EndDate, req.StartDate)
	}

	slot, enr, err := s.loadParticipants(ctx, req.SlotID, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	result := &PackageResult{
		PackageGroupID: uuid.NewString(),
		RequestedEnd:   req.EndDate,
		EffectiveEnd:   req.EndDate,
	}

	// The package never outlives the enrollment: occurrences past the
	// expiry are cut off up front rather than failed one by one.
	if enr.ExpiryDate != "" && enr.ExpiryDate < result.EffectiveEnd {
		result.EffectiveEnd = enr.ExpiryDate
		result.Clamped = true
	}

	first, err := schedule.ResolveDate(slot, req.StartDate, now)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	loc := first.StartsAt.Location()
	date := first.LocalDate
	if date < req.StartDate {
		date = nextWeek(date, loc)
	}

	for weeks := 0; date <= result.EffectiveEnd && weeks < s.policy.PackageWeeksLimit; weeks++ {
		occ, err := schedule.ResolveDate(slot, date, now)
		if err != nil {
			result.Failed = append(result.Failed, DateFailure{Date: date, Reason: err.Error()})
			date = nextWeek(date, loc)
			continue
		}

		booking, err := s.book(ctx, slot, enr, occ, now, database.BookingAttrs{
			StartsAt:       occ.StartsAt,
			BookingType:    models.TypeWeekly,
			PackageGroupID: result.PackageGroupID,
			PackageEndDate: result.EffectiveEnd,
		})
		switch {
		case err == nil:
			result.Booked = append(result.Booked, occ.LocalDate)
			metrics.IncBookingCreated(models.TypeWeekly)
			s.publishBookingEvent(events.TypeBookingCreated, booking)
		case errors.Is(err, database.ErrAlreadyBooked):
			result.Skipped = append(result.Skipped, occ.LocalDate)
		default:
			result.Failed = append(result.Failed, DateFailure{Date: occ.LocalDate, Reason: reasonOf(err)})
		}

		date = nextWeek(date, loc)
	}

	if len(result.Booked) == 0 {
		result.Warning = "no new bookings were created"
	}

	s.logger.Info().
		Str("package_group_id", result.PackageGroupID).
		Int64("slot_id", slot.ID).
		Int64("enrollment_id", enr.ID).
		Int("booked", len(result.Booked)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Bool("clamped", result.Clamped).
		Msg("weekly package processed")

	return result, nil
}

// Cancel transitions a booking to cancelled. Students are held to the
// self-cancel notice window; admin and system actors bypass it. The guarded
// storage update makes concurrent cancels race-safe.
func (s *BookingService) Cancel(ctx context.Context, bookingID int64, actor Actor, reason string) (*models.Booking, error) {
	now := s.now()

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if actor.Role == RoleStudent {
		if booking.StartsAt.Sub(now) < s.policy.SelfCancelNotice {
			return nil, &ForbiddenError{
				Reason: fmt.Sprintf("cancellation requires at least %s notice", s.policy.SelfCancelNotice),
			}
		}
	}

	if err := s.repo.CancelBooking(ctx, bookingID, actor.String(), reason, now); err != nil {
		return nil, err
	}

	booking, err = s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCancelled(actor.Role)
	s.logger.Info().
		Int64("booking_id", bookingID).
		Str("actor", actor.String()).
		Str("reason", reason).
		Msg("booking cancelled")
	s.publishBookingEvent(events.TypeBookingCancelled, booking)

	return booking, nil
}

// MarkNoShow records that the student missed a booked occurrence.
func (s *BookingService) MarkNoShow(ctx context.Context, bookingID int64) error {
	if err := s.repo.MarkBookingStatus(ctx, bookingID, models.StatusNoShow); err != nil {
		return err
	}
	s.logger.Info().Int64("booking_id", bookingID).Msg("booking marked no-show")
	return nil
}

// MarkCompleted records that a booked occurrence took place.
func (s *BookingService) MarkCompleted(ctx context.Context, bookingID int64) error {
	return s.repo.MarkBookingStatus(ctx, bookingID, models.StatusCompleted)
}

// ListBookings returns bookings matching the filter.
func (s *BookingService) ListBookings(ctx context.Context, filter database.BookingFilter) ([]models.Booking, error) {
	return s.repo.ListBookings(ctx, filter)
}

// DeactivationResult reports the outcome of a slot deactivation.
type DeactivationResult struct {
	SlotID            int64 `json:"slot_id"`
	CancelledBookings int   `json:"cancelled_bookings"`
}

// DeactivateSlot soft-deletes a slot definition. If booked future
// occurrences exist the call fails with SlotBusyError unless force is set,
// in which case they are cancelled first so no student holds a spot in a
// slot that no longer exists.
func (s *BookingService) DeactivateSlot(ctx context.Context, slotID int64, force bool, actor Actor) (*DeactivationResult, error) {
	now := s.now()

	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	result := &DeactivationResult{SlotID: slotID}
	if !slot.IsActive {
		return result, nil
	}

	future, err := s.repo.ListFutureBooked(ctx, slotID, now)
	if err != nil {
		return nil, err
	}
	if len(future) > 0 && !force {
		return nil, &SlotBusyError{FutureBookings: len(future)}
	}

	for _, b := range future {
		err := s.repo.CancelBooking(ctx, b.ID, actor.String(), "slot removed", now)
		switch {
		case err == nil:
			result.CancelledBookings++
			metrics.IncBookingCancelled(actor.Role)
			s.publishBookingEvent(events.TypeBookingCancelled, &b)
		case errors.Is(err, database.ErrInvalidTransition):
			// Lost a race with another terminal transition; the spot is
			// already released either way.
		default:
			return nil, fmt.Errorf("cancel booking %d: %w", b.ID, err)
		}
	}

	if err := s.repo.SetSlotActive(ctx, slotID, false); err != nil {
		return nil, err
	}

	metrics.IncSlotDeactivated()
	s.logger.Info().
		Int64("slot_id", slotID).
		Int("cancelled", result.CancelledBookings).
		Str("actor", actor.String()).
		Msg("slot deactivated")
	if s.bus != nil {
		_ = s.bus.PublishJSON(events.TypeSlotDeactivated, result)
	}

	return result, nil
}

// WeekAvailability resolves every active slot of a batch onto the week
// containing the weekStart date and merges live booked counts with
// eligibility. weekStart is a local calendar date, not an instant: it is
// interpreted per slot (or in the override timezone) so the named week never
// shifts across the date line. The booked counts are read at call time,
// never cached in slot rows.
func (s *BookingService) WeekAvailability(ctx context.Context, batchID int64, weekStart string, tzOverride string) (*schedule.WeekView, error) {
	now := s.now()

	if _, err := time.Parse(schedule.DateLayout, weekStart); err != nil {
		return nil, validationf("invalid week_start %q; expected YYYY-MM-DD", weekStart)
	}
	if tzOverride != "" && !schedule.IsValidTimezone(tzOverride) {
		return nil, validationf("unknown timezone %q", tzOverride)
	}

	slots, err := s.repo.ListActiveSlots(ctx, batchID)
	if err != nil {
		return nil, err
	}

	viewTZ := tzOverride
	if viewTZ == "" {
		if len(slots) > 0 {
			viewTZ = slots[0].Timezone
		} else {
			viewTZ = "UTC"
		}
	}

	entries := make([]schedule.SlotAvailability, 0, len(slots))
	for i := range slots {
		slot := &slots[i]

		occ, err := schedule.ResolveWeek(slot, weekStart, now, tzOverride)
		if err != nil {
			return nil, fmt.Errorf("resolve slot %d: %w", slot.ID, err)
		}

		count, err := s.repo.CountBookings(ctx, slot.ID, occ.LocalDate, models.CapacityStatuses)
		if err != nil {
			return nil, fmt.Errorf("count bookings for slot %d: %w", slot.ID, err)
		}

		decision := schedule.IsBookable(slot, occ, now, schedule.Policy{MinAdvance: s.policy.MinAdvance})
		entries = append(entries, schedule.Availability(slot, occ, count, decision))
	}

	viewLoc, err := time.LoadLocation(viewTZ)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", viewTZ, err)
	}
	viewWeek, err := time.ParseInLocation(schedule.DateLayout, weekStart, viewLoc)
	if err != nil {
		return nil, validationf("invalid week_start %q; expected YYYY-MM-DD", weekStart)
	}

	return schedule.BuildWeekView(viewWeek, viewTZ, entries)
}

// loadParticipants fetches the slot and enrollment and applies the checks
// shared by every booking path.
func (s *BookingService) loadParticipants(ctx context.Context, slotID, enrollmentID int64) (*models.SlotDefinition, *models.Enrollment, error) {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, fmt.Errorf("slot %d: %w", slotID, database.ErrNotFound)
		}
		return nil, nil, err
	}
	if !slot.IsActive {
		return nil, nil, &NotEligibleError{Reason: "slot is not active"}
	}

	enr, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, fmt.Errorf("enrollment %d: %w", enrollmentID, database.ErrNotFound)
		}
		return nil, nil, err
	}
	if !enr.IsActive() {
		return nil, nil, &NotEligibleError{Reason: fmt.Sprintf("enrollment is %s", enr.Status)}
	}
	if enr.BatchID != slot.BatchID {
		return nil, nil, &NotEligibleError{Reason: "enrollment does not cover this slot's batch"}
	}
	if enr.SessionsAllowed > 0 && enr.SessionsUsed >= enr.SessionsAllowed {
		return nil, nil, &NotEligibleError{Reason: "no sessions remaining on enrollment"}
	}

	return slot, enr, nil
}

// occurrenceOn resolves the slot's occurrence on an exact local date,
// rejecting dates that do not fall on the slot's weekday.
func (s *BookingService) occurrenceOn(slot *models.SlotDefinition, date string, now time.Time) (schedule.Occurrence, error) {
	occ, err := schedule.ResolveDate(slot, date, now)
	if err != nil {
		return schedule.Occurrence{}, &ValidationError{Reason: err.Error()}
	}
	if occ.LocalDate != date {
		return schedule.Occurrence{}, validationf("date %s does not fall on %s", date, models.DayNames[slot.DayOfWeek])
	}
	return occ, nil
}

// book runs the shared booking path: eligibility, expiry coverage, the
// atomic conditional insert and the session counter bump.
func (s *BookingService) book(ctx context.Context, slot *models.SlotDefinition, enr *models.Enrollment, occ schedule.Occurrence, now time.Time, attrs database.BookingAttrs) (*models.Booking, error) {
	decision := schedule.IsBookable(slot, occ, now, schedule.Policy{MinAdvance: s.policy.MinAdvance})
	if !decision.OK {
		return nil, &NotEligibleError{Reason: decision.Reason}
	}
	if !enr.CoversDate(occ.LocalDate) {
		return nil, &NotEligibleError{Reason: fmt.Sprintf("enrollment expires on %s", enr.ExpiryDate)}
	}
	if enr.SessionsAllowed > 0 && enr.SessionsUsed >= enr.SessionsAllowed {
		return nil, &NotEligibleError{Reason: "no sessions remaining on enrollment"}
	}

	booking, err := s.repo.InsertBookingIfAbsent(ctx, slot.ID, occ.LocalDate, enr.ID, slot.MaxOccupants, attrs)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrAlreadyBooked):
			metrics.IncBookingConflict("already_booked")
		case errors.Is(err, database.ErrCapacityFull):
			metrics.IncBookingConflict("capacity")
		}
		return nil, err
	}

	if err := s.repo.IncrementSessionsUsed(ctx, enr.ID); err != nil {
		// The booking committed; a failed counter bump must not unwind it.
		s.logger.Warn().Err(err).Int64("enrollment_id", enr.ID).Msg("failed to bump session counter")
	}
	enr.SessionsUsed++

	return booking, nil
}

func (s *BookingService) publishBookingEvent(eventType string, b *models.Booking) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, b); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

// nextWeek advances a local date string by seven days.
func nextWeek(date string, loc *time.Location) string {
	t, _ := time.ParseInLocation(schedule.DateLayout, date, loc)
	return t.AddDate(0, 0, 7).Format(schedule.DateLayout)
}

func reasonOf(err error) string {
	var ne *NotEligibleError
	if errors.As(err, &ne) {
		return ne.Reason
	}
	if errors.Is(err, database.ErrCapacityFull) {
		return "no spots left"
	}
	return err.Error()
}
