package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type makeupRepo interface {
	Create(ctx context.Context, makeup *models.MakeupSession) error
	FindByID(ctx context.Context, id string) (*models.MakeupSession, error)
	List(ctx context.Context, filter models.MakeupFilter) ([]models.MakeupSession, int, error)
	ApproveWithBooking(ctx context.Context, makeup *models.MakeupSession, booking *models.ScheduleDetail, approvedBy string) error
	Reject(ctx context.Context, id, rejectedBy string) error
	Complete(ctx context.Context, id string) error
}

type scheduleFinder interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleDetail, error)
}

// CreateMakeupRequest proposes a replacement session for a cancelled schedule.
type CreateMakeupRequest struct {
	OriginalScheduleID string `json:"original_schedule_id" validate:"required"`
	ProposedDate       string `json:"proposed_date" validate:"required"`
	ProposedTimeSlotID string `json:"proposed_time_slot_id" validate:"required"`
	ProposedRoomID     string `json:"proposed_room_id" validate:"required"`
	Reason             string `json:"reason"`
}

// MakeupService manages the makeup session lifecycle:
// PENDING -> APPROVED -> COMPLETED, with REJECTED as the alternate terminal.
type MakeupService struct {
	makeups   makeupRepo
	schedules scheduleFinder
	slots     slotResolver
	catalog   catalogReader
	cache     *CacheService
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMakeupService constructs MakeupService.
func NewMakeupService(makeups makeupRepo, schedules scheduleFinder, slots slotResolver, catalog catalogReader, cache *CacheService, notifier Notifier, validate *validator.Validate, logger *zap.Logger) *MakeupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MakeupService{
		makeups:   makeups,
		schedules: schedules,
		slots:     slots,
		catalog:   catalog,
		cache:     cache,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
	}
}

// Get loads a makeup session.
func (s *MakeupService) Get(ctx context.Context, id string) (*models.MakeupSession, error) {
	makeup, err := s.makeups.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("makeup session %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load makeup session")
	}
	return makeup, nil
}

// List returns makeup sessions.
func (s *MakeupService) List(ctx context.Context, filter models.MakeupFilter) ([]models.MakeupSession, int, error) {
	makeups, total, err := s.makeups.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list makeup sessions")
	}
	return makeups, total, nil
}

// Create opens a PENDING proposal for a cancelled schedule. The proposed slot
// is only validated structurally; conflicts are checked at approval.
func (s *MakeupService) Create(ctx context.Context, req CreateMakeupRequest, actorID string) (*models.MakeupSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid makeup payload")
	}
	original, err := s.schedules.FindByID(ctx, req.OriginalScheduleID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", req.OriginalScheduleID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if !original.IsCancelled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "makeup sessions require a cancelled schedule")
	}

	proposedDate, err := parseDate(req.ProposedDate)
	if err != nil {
		return nil, err
	}
	slot, err := s.slots.Get(ctx, req.ProposedTimeSlotID)
	if err != nil {
		return nil, err
	}
	if models.WeekdayIndex(proposedDate) != slot.DayOfWeek {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("proposed date falls on %s but slot is %s", models.DayName(models.WeekdayIndex(proposedDate)), models.DayName(slot.DayOfWeek)))
	}
	if _, err := s.catalog.FindRoom(ctx, req.ProposedRoomID); err != nil {
		return nil, catalogError(err, "room", req.ProposedRoomID)
	}

	makeup := &models.MakeupSession{
		OriginalScheduleID: req.OriginalScheduleID,
		ProposedDate:       proposedDate,
		ProposedTimeSlotID: req.ProposedTimeSlotID,
		ProposedRoomID:     req.ProposedRoomID,
		Reason:             req.Reason,
		CreatedBy:          optionalID(actorID),
	}
	if err := s.makeups.Create(ctx, makeup); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create makeup session")
	}

	s.notify(original.TeacherID, models.EventMakeupRequested, "Makeup session proposed",
		fmt.Sprintf("Makeup proposed for %q on %s", original.Title, proposedDate.Format("2006-01-02")), &original.ID, &makeup.ID)
	return makeup, nil
}

// Approve transitions a PENDING makeup to APPROVED and materialises the
// proposal as a one-day schedule so every later conflict check sees the
// booking. A clashing proposal leaves the makeup PENDING and returns
// ErrConflict.
func (s *MakeupService) Approve(ctx context.Context, id string, actorID string) (*models.MakeupSession, error) {
	makeup, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if makeup.Status != models.MakeupPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("makeup session is %s, expected PENDING", makeup.Status))
	}

	original, err := s.schedules.FindByID(ctx, makeup.OriginalScheduleID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", makeup.OriginalScheduleID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load original schedule")
	}
	slot, err := s.slots.Get(ctx, makeup.ProposedTimeSlotID)
	if err != nil {
		return nil, err
	}

	booking := &models.ScheduleDetail{
		Schedule: models.Schedule{
			Title:        fmt.Sprintf("%s (makeup)", original.Title),
			SubjectID:    original.SubjectID,
			TeacherID:    original.TeacherID,
			RoomID:       makeup.ProposedRoomID,
			TimeSlotID:   slot.ID,
			StartDate:    makeup.ProposedDate,
			EndDate:      makeup.ProposedDate,
			StudentCount: original.StudentCount,
			Notes:        makeup.Reason,
			Active:       true,
			CreatedBy:    optionalID(actorID),
			UpdatedBy:    optionalID(actorID),
		},
		Slot: *slot,
	}

	if err := s.makeups.ApproveWithBooking(ctx, makeup, booking, actorID); err != nil {
		var conflict *models.BookingConflictError
		if errors.As(err, &conflict) {
			return nil, appErrors.Wrap(conflict, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, conflict.Message)
		}
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "makeup session is no longer PENDING")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve makeup session")
	}
	s.cache.InvalidateSchedules(ctx)

	s.logger.Info("makeup approved",
		zap.String("makeup_id", makeup.ID),
		zap.String("booking_schedule_id", booking.ID))
	s.notify(original.TeacherID, models.EventMakeupDecided, "Makeup session approved",
		fmt.Sprintf("Makeup for %q approved on %s", original.Title, makeup.ProposedDate.Format("2006-01-02")), &booking.ID, &makeup.ID)
	return makeup, nil
}

// Reject transitions a PENDING makeup to its terminal REJECTED state.
func (s *MakeupService) Reject(ctx context.Context, id string, actorID string) (*models.MakeupSession, error) {
	makeup, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if makeup.Status != models.MakeupPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("makeup session is %s, expected PENDING", makeup.Status))
	}
	if err := s.makeups.Reject(ctx, id, actorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "makeup session is no longer PENDING")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject makeup session")
	}

	if original, err := s.schedules.FindByID(ctx, makeup.OriginalScheduleID); err == nil {
		s.notify(original.TeacherID, models.EventMakeupDecided, "Makeup session rejected",
			fmt.Sprintf("Makeup for %q on %s was rejected", original.Title, makeup.ProposedDate.Format("2006-01-02")), &original.ID, &makeup.ID)
	}
	return s.Get(ctx, id)
}

// Complete transitions an APPROVED makeup to COMPLETED once the session has
// been held.
func (s *MakeupService) Complete(ctx context.Context, id string) (*models.MakeupSession, error) {
	makeup, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if makeup.Status != models.MakeupApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("makeup session is %s, expected APPROVED", makeup.Status))
	}
	if err := s.makeups.Complete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "makeup session is no longer APPROVED")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete makeup session")
	}
	return s.Get(ctx, id)
}

func (s *MakeupService) notify(teacherID, event, title, message string, scheduleID, makeupID *string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(models.Notification{
		RecipientID: teacherID,
		EventType:   event,
		Title:       title,
		Message:     message,
		ScheduleID:  scheduleID,
		MakeupID:    makeupID,
	})
}
