package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tutorbook/internal/models"
	"tutorbook/internal/schedule"
)

// Slot validation bounds.
const (
	minSlotDuration = 15 * time.Minute
	maxSlotDuration = 8 * time.Hour
	maxOccupantsCap = 50
)

// SlotRepository is the storage contract for slot administration.
type SlotRepository interface {
	CreateSlot(ctx context.Context, s *models.SlotDefinition) error
	GetSlot(ctx context.Context, id int64) (*models.SlotDefinition, error)
	ListActiveSlots(ctx context.Context, batchID int64) ([]models.SlotDefinition, error)
	UpdateSlot(ctx context.Context, s *models.SlotDefinition) error
}

// SlotService manages slot definitions: validation plus storage calls.
// Deactivation lives on BookingService because of its booking cascade.
type SlotService struct {
	repo            SlotRepository
	allowedWeekdays map[int]bool
	logger          *zerolog.Logger
}

// NewSlotService constructs the slot admin service. allowedWeekdays limits
// which days of week slots may be defined on; an empty map allows all seven.
func NewSlotService(repo SlotRepository, allowedWeekdays map[int]bool, logger *zerolog.Logger) *SlotService {
	return &SlotService{
		repo:            repo,
		allowedWeekdays: allowedWeekdays,
		logger:          logger,
	}
}

// Create validates and persists a new slot definition.
func (s *SlotService) Create(ctx context.Context, slot *models.SlotDefinition) error {
	if err := s.validate(slot); err != nil {
		return err
	}

	slot.IsActive = true
	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		return err
	}

	s.logger.Info().
		Int64("slot_id", slot.ID).
		Int64("tutor_id", slot.TutorID).
		Str("day", models.DayNames[slot.DayOfWeek]).
		Str("start_time", slot.StartTime).
		Msg("slot created")
	return nil
}

// Update validates and rewrites an existing slot definition. Changing the
// pattern does not touch existing bookings; their occurrence dates and start
// instants were fixed at booking time.
func (s *SlotService) Update(ctx context.Context, slot *models.SlotDefinition) error {
	if slot.ID == 0 {
		return &ValidationError{Reason: "slot id is required"}
	}
	if err := s.validate(slot); err != nil {
		return err
	}

	if err := s.repo.UpdateSlot(ctx, slot); err != nil {
		return err
	}

	s.logger.Info().Int64("slot_id", slot.ID).Msg("slot updated")
	return nil
}

// Get returns one slot definition.
func (s *SlotService) Get(ctx context.Context, id int64) (*models.SlotDefinition, error) {
	return s.repo.GetSlot(ctx, id)
}

// ListActive returns the active slots of a batch ordered by day and time.
func (s *SlotService) ListActive(ctx context.Context, batchID int64) ([]models.SlotDefinition, error) {
	return s.repo.ListActiveSlots(ctx, batchID)
}

func (s *SlotService) validate(slot *models.SlotDefinition) error {
	if slot.TutorID == 0 {
		return &ValidationError{Reason: "tutor_id is required"}
	}
	if slot.DayOfWeek < 1 || slot.DayOfWeek > 7 {
		return validationf("day_of_week must be 1 (Monday) through 7 (Sunday), got %d", slot.DayOfWeek)
	}
	if len(s.allowedWeekdays) > 0 && !s.allowedWeekdays[slot.DayOfWeek] {
		return validationf("slots on %s are not allowed", models.DayNames[slot.DayOfWeek])
	}
	if !schedule.ValidClock(slot.StartTime) {
		return validationf("invalid start_time %q; expected HH:MM", slot.StartTime)
	}

	d := slot.Duration()
	if d < minSlotDuration || d > maxSlotDuration {
		return validationf("duration must be between %s and %s", minSlotDuration, maxSlotDuration)
	}
	if slot.MaxOccupants < 1 || slot.MaxOccupants > maxOccupantsCap {
		return validationf("max_occupants must be between 1 and %d", maxOccupantsCap)
	}
	if !schedule.IsValidTimezone(slot.Timezone) {
		return validationf("unknown timezone %q", slot.Timezone)
	}

	if _, err := time.Parse(schedule.DateLayout, slot.EffectiveFrom); err != nil {
		return validationf("invalid effective_from %q; expected YYYY-MM-DD", slot.EffectiveFrom)
	}
	if slot.EffectiveUntil != "" {
		if _, err := time.Parse(schedule.DateLayout, slot.EffectiveUntil); err != nil {
			return validationf("invalid effective_until %q; expected YYYY-MM-DD", slot.EffectiveUntil)
		}
		if slot.EffectiveUntil < slot.EffectiveFrom {
			return validationf("effective_until %s is before effective_from %s", slot.EffectiveUntil, slot.EffectiveFrom)
		}
	}

	return nil
}
