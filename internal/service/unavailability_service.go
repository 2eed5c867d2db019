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

type unavailabilityRepo interface {
	Create(ctx context.Context, entry *models.TeacherUnavailability) error
	List(ctx context.Context, filter models.UnavailabilityFilter) ([]models.TeacherUnavailability, int, error)
	Deactivate(ctx context.Context, id string) error
}

// CreateUnavailabilityRequest declares a teacher unavailable over a date
// range. Omit the times or set is_all_day for whole-day windows.
type CreateUnavailabilityRequest struct {
	TeacherID string  `json:"teacher_id" validate:"required"`
	StartDate string  `json:"start_date" validate:"required"`
	EndDate   string  `json:"end_date" validate:"required"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Type      string  `json:"unavailability_type" validate:"required,oneof=SICK_LEAVE VACATION CONFERENCE MEETING PERSONAL OTHER"`
	Reason    string  `json:"reason"`
	IsAllDay  bool    `json:"is_all_day"`
}

// UnavailabilityService manages teacher unavailability windows. Windows never
// block bookings directly; they surface through dry-run checks and the
// reconciliation scanner.
type UnavailabilityService struct {
	unavailabilities unavailabilityRepo
	catalog          catalogReader
	validator        *validator.Validate
	logger           *zap.Logger
}

// NewUnavailabilityService constructs UnavailabilityService.
func NewUnavailabilityService(unavailabilities unavailabilityRepo, catalog catalogReader, validate *validator.Validate, logger *zap.Logger) *UnavailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnavailabilityService{
		unavailabilities: unavailabilities,
		catalog:          catalog,
		validator:        validate,
		logger:           logger,
	}
}

// Create stores a new unavailability window.
func (s *UnavailabilityService) Create(ctx context.Context, req CreateUnavailabilityRequest, actorID string) (*models.TeacherUnavailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unavailability payload")
	}
	startDate, endDate, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.FindTeacher(ctx, req.TeacherID); err != nil {
		return nil, catalogError(err, "teacher", req.TeacherID)
	}

	if !req.IsAllDay {
		if req.StartTime == nil || req.EndTime == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "partial-day windows require start_time and end_time")
		}
		if !models.ValidClock(*req.StartTime) || !models.ValidClock(*req.EndTime) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "times must be zero-padded HH:MM")
		}
		if *req.StartTime >= *req.EndTime {
			return nil, appErrors.Clone(appErrors.ErrInvalidRange, "start time must be before end time")
		}
	}

	entry := &models.TeacherUnavailability{
		TeacherID: req.TeacherID,
		StartDate: startDate,
		EndDate:   endDate,
		Type:      req.Type,
		Reason:    req.Reason,
		IsAllDay:  req.IsAllDay,
		CreatedBy: optionalID(actorID),
	}
	if !req.IsAllDay {
		entry.StartTime = req.StartTime
		entry.EndTime = req.EndTime
	}
	if err := s.unavailabilities.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create unavailability")
	}
	return entry, nil
}

// List returns unavailability windows.
func (s *UnavailabilityService) List(ctx context.Context, filter models.UnavailabilityFilter) ([]models.TeacherUnavailability, int, error) {
	entries, total, err := s.unavailabilities.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unavailabilities")
	}
	return entries, total, nil
}

// Delete soft-deletes an unavailability window.
func (s *UnavailabilityService) Delete(ctx context.Context, id string) error {
	if err := s.unavailabilities.Deactivate(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unavailability %s not found", id))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete unavailability")
	}
	return nil
}
