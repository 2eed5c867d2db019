package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type scheduleRepo interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleDetail, error)
	CreateChecked(ctx context.Context, sched *models.ScheduleDetail, programIDs []string) error
	UpdateChecked(ctx context.Context, sched *models.ScheduleDetail) error
	Cancel(ctx context.Context, id, reason string, updatedBy *string, makeup *models.MakeupSession) error
	Deactivate(ctx context.Context, id string, updatedBy *string) error
	ListForWeek(ctx context.Context, weekStart, weekEnd time.Time, teacherID, roomID string) ([]models.ScheduleDetail, error)
	Stats(ctx context.Context) (*models.ScheduleStats, error)
	ProgramIDs(ctx context.Context, scheduleID string) ([]string, error)
}

type catalogReader interface {
	FindSubject(ctx context.Context, id string) (*models.Subject, error)
	FindTeacher(ctx context.Context, id string) (*models.Teacher, error)
	FindRoom(ctx context.Context, id string) (*models.Room, error)
}

type slotResolver interface {
	Resolve(ctx context.Context, req ResolveTimeSlotRequest) (*models.TimeSlot, error)
	Get(ctx context.Context, id string) (*models.TimeSlot, error)
}

type makeupCounter interface {
	CountPending(ctx context.Context) (int, error)
}

type conflictCounter interface {
	CountUnresolved(ctx context.Context) (int, error)
}

// CreateScheduleRequest books a recurring session. Dates use "2006-01-02";
// times use zero-padded "HH:MM". Title is synthesised from the subject and
// slot when omitted.
type CreateScheduleRequest struct {
	Title        string   `json:"title"`
	SubjectID    string   `json:"subject_id" validate:"required"`
	TeacherID    string   `json:"teacher_id" validate:"required"`
	RoomID       string   `json:"room_id" validate:"required"`
	DayOfWeek    *int     `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime    string   `json:"start_time" validate:"required"`
	EndTime      string   `json:"end_time" validate:"required"`
	StartDate    string   `json:"start_date" validate:"required"`
	EndDate      string   `json:"end_date" validate:"required"`
	StudentCount int      `json:"student_count" validate:"min=0"`
	Notes        string   `json:"notes"`
	ProgramIDs   []string `json:"program_ids"`
}

// UpdateScheduleRequest rewrites a schedule's assignment. Program links are
// fixed at creation.
type UpdateScheduleRequest struct {
	Title        string `json:"title"`
	SubjectID    string `json:"subject_id" validate:"required"`
	TeacherID    string `json:"teacher_id" validate:"required"`
	RoomID       string `json:"room_id" validate:"required"`
	DayOfWeek    *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime    string `json:"start_time" validate:"required"`
	EndTime      string `json:"end_time" validate:"required"`
	StartDate    string `json:"start_date" validate:"required"`
	EndDate      string `json:"end_date" validate:"required"`
	StudentCount int    `json:"student_count" validate:"min=0"`
	Notes        string `json:"notes"`
}

// MakeupProposalRequest rides along with a cancellation to propose a
// replacement session. The proposal is validated structurally here and
// conflict-checked only at approval.
type MakeupProposalRequest struct {
	ProposedDate       string `json:"proposed_date" validate:"required"`
	ProposedTimeSlotID string `json:"proposed_time_slot_id" validate:"required"`
	ProposedRoomID     string `json:"proposed_room_id" validate:"required"`
	Reason             string `json:"reason"`
}

// CancelScheduleRequest cancels a schedule with an optional makeup proposal.
type CancelScheduleRequest struct {
	Reason string                 `json:"reason" validate:"required"`
	Makeup *MakeupProposalRequest `json:"makeup,omitempty"`
}

// CheckConflictsRequest is a dry-run booking probe. Nothing is written.
type CheckConflictsRequest struct {
	TeacherID         string `json:"teacher_id" validate:"required"`
	RoomID            string `json:"room_id" validate:"required"`
	DayOfWeek         *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime         string `json:"start_time" validate:"required"`
	EndTime           string `json:"end_time" validate:"required"`
	StartDate         string `json:"start_date" validate:"required"`
	EndDate           string `json:"end_date" validate:"required"`
	ExcludeScheduleID string `json:"exclude_schedule_id"`
}

// CheckConflictsResult reports dry-run findings.
type CheckConflictsResult struct {
	HasConflicts bool              `json:"has_conflicts"`
	Findings     []ConflictFinding `json:"findings"`
}

// ScheduleDetailResponse decorates a schedule with its program links.
type ScheduleDetailResponse struct {
	models.ScheduleDetail
	ProgramIDs []string `json:"program_ids"`
}

// ScheduleService orchestrates booking writes, conflict probing and timetable
// projections.
type ScheduleService struct {
	schedules scheduleRepo
	catalog   catalogReader
	slots     slotResolver
	checker   *ConflictChecker
	makeups   makeupCounter
	conflicts conflictCounter
	cache     *CacheService
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
	weeklyTTL time.Duration
}

// NewScheduleService constructs ScheduleService.
func NewScheduleService(schedules scheduleRepo, catalog catalogReader, slots slotResolver, checker *ConflictChecker, makeups makeupCounter, conflicts conflictCounter, cache *CacheService, notifier Notifier, validate *validator.Validate, logger *zap.Logger, weeklyTTL time.Duration) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if weeklyTTL <= 0 {
		weeklyTTL = 5 * time.Minute
	}
	return &ScheduleService{
		schedules: schedules,
		catalog:   catalog,
		slots:     slots,
		checker:   checker,
		makeups:   makeups,
		conflicts: conflicts,
		cache:     cache,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		weeklyTTL: weeklyTTL,
	}
}

// List returns schedules with their slots.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	schedules, total, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return schedules, total, nil
}

// Get loads a schedule with its program links.
func (s *ScheduleService) Get(ctx context.Context, id string) (*ScheduleDetailResponse, error) {
	sched, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	programIDs, err := s.schedules.ProgramIDs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule programs")
	}
	return &ScheduleDetailResponse{ScheduleDetail: *sched, ProgramIDs: programIDs}, nil
}

// Create books a new recurring session. Returns ErrConflict wrapping a
// *models.BookingConflictError when the room or teacher is already taken.
func (s *ScheduleService) Create(ctx context.Context, req CreateScheduleRequest, actorID string) (*ScheduleDetailResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	sched, subject, err := s.buildSchedule(ctx, req.Title, req.SubjectID, req.TeacherID, req.RoomID, *req.DayOfWeek, req.StartTime, req.EndTime, req.StartDate, req.EndDate, req.StudentCount, req.Notes)
	if err != nil {
		return nil, err
	}
	sched.CreatedBy = optionalID(actorID)
	sched.UpdatedBy = sched.CreatedBy
	sched.Active = true

	if err := s.schedules.CreateChecked(ctx, sched, req.ProgramIDs); err != nil {
		return nil, s.mapWriteError(err, "failed to create schedule")
	}
	s.cache.InvalidateSchedules(ctx)

	s.logger.Info("schedule created",
		zap.String("schedule_id", sched.ID),
		zap.String("subject", subject.Name),
		zap.String("slot", sched.Slot.Label()))
	return &ScheduleDetailResponse{ScheduleDetail: *sched, ProgramIDs: req.ProgramIDs}, nil
}

// Update rewrites a schedule's assignment under the same conflict guarantees
// as Create, excluding the schedule itself from candidate checks.
func (s *ScheduleService) Update(ctx context.Context, id string, req UpdateScheduleRequest, actorID string) (*ScheduleDetailResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	existing, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if existing.IsCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cancelled schedules cannot be updated")
	}

	sched, _, err := s.buildSchedule(ctx, req.Title, req.SubjectID, req.TeacherID, req.RoomID, *req.DayOfWeek, req.StartTime, req.EndTime, req.StartDate, req.EndDate, req.StudentCount, req.Notes)
	if err != nil {
		return nil, err
	}
	sched.ID = id
	sched.Active = existing.Active
	sched.CreatedBy = existing.CreatedBy
	sched.CreatedAt = existing.CreatedAt
	sched.UpdatedBy = optionalID(actorID)

	if err := s.schedules.UpdateChecked(ctx, sched); err != nil {
		return nil, s.mapWriteError(err, "failed to update schedule")
	}
	s.cache.InvalidateSchedules(ctx)
	s.notifyTeacher(sched.TeacherID, models.EventScheduleUpdated, "Schedule updated",
		fmt.Sprintf("%q moved to %s", sched.Title, sched.Slot.Label()), &sched.ID, nil)

	programIDs, err := s.schedules.ProgramIDs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule programs")
	}
	return &ScheduleDetailResponse{ScheduleDetail: *sched, ProgramIDs: programIDs}, nil
}

// Cancel marks a schedule cancelled, optionally opening a PENDING makeup
// proposal in the same transaction. Cancelled schedules stop participating in
// conflict detection but remain visible for audit.
func (s *ScheduleService) Cancel(ctx context.Context, id string, req CancelScheduleRequest, actorID string) (*models.ScheduleDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	existing, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if existing.IsCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "schedule already cancelled")
	}

	var makeup *models.MakeupSession
	if req.Makeup != nil {
		makeup, err = s.buildMakeupProposal(ctx, *req.Makeup, actorID)
		if err != nil {
			return nil, err
		}
	}

	if err := s.schedules.Cancel(ctx, id, req.Reason, optionalID(actorID), makeup); err != nil {
		if err == sql.ErrNoRows {
			// the guarded UPDATE matched nothing: a concurrent cancel won
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "schedule already cancelled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel schedule")
	}
	s.cache.InvalidateSchedules(ctx)
	s.notifyTeacher(existing.TeacherID, models.EventScheduleCancelled, "Schedule cancelled",
		fmt.Sprintf("%q on %s was cancelled: %s", existing.Title, existing.Slot.Label(), req.Reason), &id, nil)
	if makeup != nil {
		s.notifyTeacher(existing.TeacherID, models.EventMakeupRequested, "Makeup session proposed",
			fmt.Sprintf("Makeup proposed for %q on %s", existing.Title, makeup.ProposedDate.Format("2006-01-02")), &id, &makeup.ID)
	}

	return s.reload(ctx, id)
}

// Deactivate soft-deletes a schedule.
func (s *ScheduleService) Deactivate(ctx context.Context, id string, actorID string) error {
	if err := s.schedules.Deactivate(ctx, id, optionalID(actorID)); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", id))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate schedule")
	}
	s.cache.InvalidateSchedules(ctx)
	return nil
}

// CheckConflicts performs a read-only probe of a hypothetical booking,
// surfacing double-bookings and teacher unavailability without writing.
func (s *ScheduleService) CheckConflicts(ctx context.Context, req CheckConflictsRequest) (*CheckConflictsResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict check payload")
	}
	startDate, endDate, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	if !models.ValidClock(req.StartTime) || !models.ValidClock(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "times must be zero-padded HH:MM")
	}
	if req.StartTime >= req.EndTime {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "start time must be before end time")
	}

	probe := models.ScheduleDetail{
		Schedule: models.Schedule{
			TeacherID: req.TeacherID,
			RoomID:    req.RoomID,
			StartDate: startDate,
			EndDate:   endDate,
			Active:    true,
		},
		Slot: models.TimeSlot{
			DayOfWeek: *req.DayOfWeek,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		},
	}
	findings, err := s.checker.Check(ctx, probe, req.ExcludeScheduleID)
	if err != nil {
		return nil, err
	}
	return &CheckConflictsResult{HasConflicts: len(findings) > 0, Findings: findings}, nil
}

// Weekly projects active sessions onto the seven days of the week containing
// anchor, optionally narrowed to one teacher or room. Served from cache when
// warm.
func (s *ScheduleService) Weekly(ctx context.Context, anchor time.Time, teacherID, roomID string) (*models.WeeklySchedule, error) {
	weekStart := anchor.AddDate(0, 0, -models.WeekdayIndex(anchor))
	weekStart = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, time.UTC)
	weekEnd := weekStart.AddDate(0, 0, 6)

	key := weeklyCacheKey(weekStart, teacherID, roomID)
	var cached models.WeeklySchedule
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	schedules, err := s.schedules.ListForWeek(ctx, weekStart, weekEnd, teacherID, roomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly schedules")
	}

	week := &models.WeeklySchedule{
		WeekStart: weekStart.Format("2006-01-02"),
		WeekEnd:   weekEnd.Format("2006-01-02"),
		Days:      make([]models.WeeklyScheduleDay, 7),
	}
	for i := 0; i < 7; i++ {
		date := weekStart.AddDate(0, 0, i)
		day := models.WeeklyScheduleDay{
			Date:      date.Format("2006-01-02"),
			DayName:   models.DayName(i),
			Schedules: []models.ScheduleDetail{},
		}
		for _, sched := range schedules {
			if sched.Slot.DayOfWeek != i {
				continue
			}
			if date.Before(sched.StartDate) || date.After(sched.EndDate) {
				continue
			}
			day.Schedules = append(day.Schedules, sched)
		}
		week.Days[i] = day
	}

	s.cache.Set(ctx, key, week, s.weeklyTTL)
	return week, nil
}

// Stats aggregates booking, makeup and conflict counts for dashboards.
func (s *ScheduleService) Stats(ctx context.Context) (*models.ScheduleStats, error) {
	stats, err := s.schedules.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate schedule stats")
	}
	if stats.PendingMakeups, err = s.makeups.CountPending(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending makeups")
	}
	if stats.UnresolvedConflicts, err = s.conflicts.CountUnresolved(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unresolved conflicts")
	}
	return stats, nil
}

func (s *ScheduleService) buildSchedule(ctx context.Context, title, subjectID, teacherID, roomID string, dayOfWeek int, startTime, endTime, startDate, endDate string, studentCount int, notes string) (*models.ScheduleDetail, *models.Subject, error) {
	from, to, err := parseDateRange(startDate, endDate)
	if err != nil {
		return nil, nil, err
	}

	slot, err := s.slots.Resolve(ctx, ResolveTimeSlotRequest{
		DayOfWeek: &dayOfWeek,
		StartTime: startTime,
		EndTime:   endTime,
	})
	if err != nil {
		return nil, nil, err
	}

	subject, err := s.catalog.FindSubject(ctx, subjectID)
	if err != nil {
		return nil, nil, catalogError(err, "subject", subjectID)
	}
	if _, err := s.catalog.FindTeacher(ctx, teacherID); err != nil {
		return nil, nil, catalogError(err, "teacher", teacherID)
	}
	room, err := s.catalog.FindRoom(ctx, roomID)
	if err != nil {
		return nil, nil, catalogError(err, "room", roomID)
	}
	if room.Capacity > 0 && studentCount > room.Capacity {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student count %d exceeds room capacity %d", studentCount, room.Capacity))
	}

	if title == "" {
		title = fmt.Sprintf("%s - %s", subject.Name, slot.Label())
	}
	return &models.ScheduleDetail{
		Schedule: models.Schedule{
			Title:        title,
			SubjectID:    subjectID,
			TeacherID:    teacherID,
			RoomID:       roomID,
			TimeSlotID:   slot.ID,
			StartDate:    from,
			EndDate:      to,
			StudentCount: studentCount,
			Notes:        notes,
		},
		Slot: *slot,
	}, subject, nil
}

func (s *ScheduleService) buildMakeupProposal(ctx context.Context, req MakeupProposalRequest, actorID string) (*models.MakeupSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid makeup proposal")
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
	return &models.MakeupSession{
		ProposedDate:       proposedDate,
		ProposedTimeSlotID: req.ProposedTimeSlotID,
		ProposedRoomID:     req.ProposedRoomID,
		Reason:             req.Reason,
		CreatedBy:          optionalID(actorID),
	}, nil
}

func (s *ScheduleService) reload(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	sched, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload schedule")
	}
	return sched, nil
}

func (s *ScheduleService) mapWriteError(err error, fallback string) error {
	var conflict *models.BookingConflictError
	if errors.As(err, &conflict) {
		return appErrors.Wrap(conflict, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, conflict.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fallback)
}

func (s *ScheduleService) notifyTeacher(teacherID, event, title, message string, scheduleID, makeupID *string) {
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

func catalogError(err error, entity, id string) error {
	if err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", entity, id))
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to load %s", entity))
}

func parseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", raw))
	}
	return parsed.UTC(), nil
}

func parseDateRange(start, end string) (time.Time, time.Time, error) {
	from, err := parseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrInvalidRange, "start date must not be after end date")
	}
	return from, to, nil
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
