package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type timeSlotRepo interface {
	GetOrCreate(ctx context.Context, slot *models.TimeSlot) error
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
	List(ctx context.Context, filter models.TimeSlotFilter) ([]models.TimeSlot, error)
	Rename(ctx context.Context, id, name string) error
}

// ResolveTimeSlotRequest identifies a slot by its structural triple.
type ResolveTimeSlotRequest struct {
	DayOfWeek *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Name      string `json:"name"`
}

// RenameTimeSlotRequest updates a slot's display name.
type RenameTimeSlotRequest struct {
	Name string `json:"name" validate:"required"`
}

// TimeSlotService manages the canonical weekly slot catalogue.
type TimeSlotService struct {
	slots     timeSlotRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimeSlotService constructs TimeSlotService.
func NewTimeSlotService(slots timeSlotRepo, validate *validator.Validate, logger *zap.Logger) *TimeSlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeSlotService{slots: slots, validator: validate, logger: logger}
}

// Resolve returns the slot for a (day, start, end) triple, creating it when
// absent. Repeated calls with the same triple converge on the same row.
func (s *TimeSlotService) Resolve(ctx context.Context, req ResolveTimeSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time slot payload")
	}
	startMin := models.MinuteOfDay(req.StartTime)
	endMin := models.MinuteOfDay(req.EndTime)
	if startMin < 0 || endMin < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "times must be zero-padded HH:MM")
	}
	if startMin >= endMin {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "start time must be before end time")
	}

	slot := &models.TimeSlot{
		DayOfWeek:       *req.DayOfWeek,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		DurationMinutes: endMin - startMin,
		Name:            req.Name,
	}
	if slot.Name == "" {
		slot.Name = slot.Label()
	}
	if err := s.slots.GetOrCreate(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve time slot")
	}
	return slot, nil
}

// Get loads a slot by id.
func (s *TimeSlotService) Get(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("time slot %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot")
	}
	return slot, nil
}

// List returns active slots ordered by weekday then start time.
func (s *TimeSlotService) List(ctx context.Context, filter models.TimeSlotFilter) ([]models.TimeSlot, error) {
	if filter.DayOfWeek != nil && (*filter.DayOfWeek < 0 || *filter.DayOfWeek > 6) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "day_of_week must be between 0 and 6")
	}
	slots, err := s.slots.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time slots")
	}
	return slots, nil
}

// Rename updates the display name; the interval itself is immutable because
// schedules reference slots by identity.
func (s *TimeSlotService) Rename(ctx context.Context, id string, req RenameTimeSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rename payload")
	}
	if err := s.slots.Rename(ctx, id, req.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("time slot %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rename time slot")
	}
	return s.Get(ctx, id)
}
