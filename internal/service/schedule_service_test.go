package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type mockScheduleRepo struct {
	schedules  map[string]*models.ScheduleDetail
	programs   map[string][]string
	createErr  error
	updateErr  error
	cancelErr  error
	lastMakeup *models.MakeupSession
	weekRows   []models.ScheduleDetail
	stats      models.ScheduleStats
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{
		schedules: make(map[string]*models.ScheduleDetail),
		programs:  make(map[string][]string),
	}
}

func (m *mockScheduleRepo) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	var out []models.ScheduleDetail
	for _, sched := range m.schedules {
		out = append(out, *sched)
	}
	return out, len(out), nil
}

func (m *mockScheduleRepo) FindByID(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	if sched, ok := m.schedules[id]; ok {
		copied := *sched
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScheduleRepo) CreateChecked(ctx context.Context, sched *models.ScheduleDetail, programIDs []string) error {
	if m.createErr != nil {
		return m.createErr
	}
	if sched.ID == "" {
		sched.ID = fmt.Sprintf("sched-%d", len(m.schedules)+1)
	}
	stored := *sched
	m.schedules[sched.ID] = &stored
	m.programs[sched.ID] = programIDs
	return nil
}

func (m *mockScheduleRepo) UpdateChecked(ctx context.Context, sched *models.ScheduleDetail) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.schedules[sched.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *sched
	m.schedules[sched.ID] = &stored
	return nil
}

func (m *mockScheduleRepo) Cancel(ctx context.Context, id, reason string, updatedBy *string, makeup *models.MakeupSession) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	sched, ok := m.schedules[id]
	if !ok || sched.IsCancelled {
		return sql.ErrNoRows
	}
	sched.IsCancelled = true
	sched.CancellationReason = reason
	if makeup != nil {
		makeup.ID = "makeup-1"
		makeup.OriginalScheduleID = id
		makeup.Status = models.MakeupPending
		m.lastMakeup = makeup
	}
	return nil
}

func (m *mockScheduleRepo) Deactivate(ctx context.Context, id string, updatedBy *string) error {
	sched, ok := m.schedules[id]
	if !ok {
		return sql.ErrNoRows
	}
	sched.Active = false
	return nil
}

func (m *mockScheduleRepo) ListForWeek(ctx context.Context, weekStart, weekEnd time.Time, teacherID, roomID string) ([]models.ScheduleDetail, error) {
	return m.weekRows, nil
}

func (m *mockScheduleRepo) Stats(ctx context.Context) (*models.ScheduleStats, error) {
	stats := m.stats
	return &stats, nil
}

func (m *mockScheduleRepo) ProgramIDs(ctx context.Context, scheduleID string) ([]string, error) {
	return m.programs[scheduleID], nil
}

type mockCatalog struct {
	subjects map[string]*models.Subject
	teachers map[string]*models.Teacher
	rooms    map[string]*models.Room
}

func (m *mockCatalog) FindSubject(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalog) FindTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := m.teachers[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalog) FindRoom(ctx context.Context, id string) (*models.Room, error) {
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

type mockSlotResolver struct {
	slots map[string]*models.TimeSlot
}

func (m *mockSlotResolver) Resolve(ctx context.Context, req ResolveTimeSlotRequest) (*models.TimeSlot, error) {
	key := fmt.Sprintf("%d|%s|%s", *req.DayOfWeek, req.StartTime, req.EndTime)
	if m.slots == nil {
		m.slots = make(map[string]*models.TimeSlot)
	}
	if slot, ok := m.slots[key]; ok {
		return slot, nil
	}
	slot := &models.TimeSlot{
		ID:        fmt.Sprintf("slot-%d", len(m.slots)+1),
		DayOfWeek: *req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Active:    true,
	}
	slot.Name = slot.Label()
	m.slots[key] = slot
	return slot, nil
}

func (m *mockSlotResolver) Get(ctx context.Context, id string) (*models.TimeSlot, error) {
	for _, slot := range m.slots {
		if slot.ID == id {
			return slot, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
}

type staticCounter struct {
	value int
}

func (c staticCounter) CountPending(ctx context.Context) (int, error)    { return c.value, nil }
func (c staticCounter) CountUnresolved(ctx context.Context) (int, error) { return c.value, nil }

type recordingNotifier struct {
	sent []models.Notification
}

func (r *recordingNotifier) Notify(n models.Notification) {
	r.sent = append(r.sent, n)
}

func defaultCatalog() *mockCatalog {
	return &mockCatalog{
		subjects: map[string]*models.Subject{"sub1": {ID: "sub1", Name: "Algebra", Active: true}},
		teachers: map[string]*models.Teacher{"t1": {ID: "t1", FullName: "Teacher One", Active: true}},
		rooms:    map[string]*models.Room{"r1": {ID: "r1", Name: "Room 101", Capacity: 30, Active: true}},
	}
}

func newScheduleService(repo *mockScheduleRepo, catalog *mockCatalog, notifier *recordingNotifier) *ScheduleService {
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	cache := NewCacheService(nil, nil, nil, false)
	return NewScheduleService(repo, catalog, &mockSlotResolver{}, checker, staticCounter{}, staticCounter{}, cache, notifier, nil, nil, 0)
}

func validCreateRequest() CreateScheduleRequest {
	return CreateScheduleRequest{
		SubjectID:    "sub1",
		TeacherID:    "t1",
		RoomID:       "r1",
		DayOfWeek:    intPtr(models.Monday),
		StartTime:    "09:00",
		EndTime:      "10:00",
		StartDate:    "2026-09-01",
		EndDate:      "2026-12-18",
		StudentCount: 25,
		ProgramIDs:   []string{"p1", "p2"},
	}
}

func TestScheduleServiceCreate(t *testing.T) {
	repo := newMockScheduleRepo()
	svc := newScheduleService(repo, defaultCatalog(), &recordingNotifier{})

	created, err := svc.Create(context.Background(), validCreateRequest(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "Algebra - Monday 09:00-10:00", created.Title)
	assert.True(t, created.Active)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, "user-1", *created.CreatedBy)
	assert.Equal(t, []string{"p1", "p2"}, created.ProgramIDs)
	assert.Equal(t, models.Monday, created.Slot.DayOfWeek)
	assert.Len(t, repo.schedules, 1)
}

func TestScheduleServiceCreateConflict(t *testing.T) {
	repo := newMockScheduleRepo()
	repo.createErr = &models.BookingConflictError{
		Resource: "room",
		Message:  "room already booked",
		Blocking: models.BookingConflict{ScheduleID: "s9", Resource: "room"},
	}
	svc := newScheduleService(repo, defaultCatalog(), &recordingNotifier{})

	_, err := svc.Create(context.Background(), validCreateRequest(), "user-1")
	require.Error(t, err)

	typed := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)

	var conflict *models.BookingConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "s9", conflict.Blocking.ScheduleID)
}

func TestScheduleServiceCreateRejectsOverCapacity(t *testing.T) {
	repo := newMockScheduleRepo()
	svc := newScheduleService(repo, defaultCatalog(), &recordingNotifier{})

	req := validCreateRequest()
	req.StudentCount = 45
	_, err := svc.Create(context.Background(), req, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.schedules)
}

func TestScheduleServiceCreateUnknownTeacher(t *testing.T) {
	repo := newMockScheduleRepo()
	svc := newScheduleService(repo, defaultCatalog(), &recordingNotifier{})

	req := validCreateRequest()
	req.TeacherID = "missing"
	_, err := svc.Create(context.Background(), req, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceCreateRejectsReversedDates(t *testing.T) {
	repo := newMockScheduleRepo()
	svc := newScheduleService(repo, defaultCatalog(), &recordingNotifier{})

	req := validCreateRequest()
	req.StartDate = "2026-12-18"
	req.EndDate = "2026-09-01"
	_, err := svc.Create(context.Background(), req, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceUpdateRejectsCancelled(t *testing.T) {
	repo := newMockScheduleRepo()
	notifier := &recordingNotifier{}
	svc := newScheduleService(repo, defaultCatalog(), notifier)

	created, err := svc.Create(context.Background(), validCreateRequest(), "user-1")
	require.NoError(t, err)
	repo.schedules[created.ID].IsCancelled = true

	req := UpdateScheduleRequest{
		SubjectID: "sub1", TeacherID: "t1", RoomID: "r1",
		DayOfWeek: intPtr(models.Tuesday),
		StartTime: "09:00", EndTime: "10:00",
		StartDate: "2026-09-01", EndDate: "2026-12-18",
	}
	_, err = svc.Update(context.Background(), created.ID, req, "user-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceUpdatePreservesAudit(t *testing.T) {
	repo := newMockScheduleRepo()
	notifier := &recordingNotifier{}
	svc := newScheduleService(repo, defaultCatalog(), notifier)

	created, err := svc.Create(context.Background(), validCreateRequest(), "user-1")
	require.NoError(t, err)

	req := UpdateScheduleRequest{
		SubjectID: "sub1", TeacherID: "t1", RoomID: "r1",
		DayOfWeek: intPtr(models.Tuesday),
		StartTime: "10:00", EndTime: "11:00",
		StartDate: "2026-09-01", EndDate: "2026-12-18",
	}
	updated, err := svc.Update(context.Background(), created.ID, req, "user-2")
	require.NoError(t, err)

	require.NotNil(t, updated.CreatedBy)
	assert.Equal(t, "user-1", *updated.CreatedBy)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, "user-2", *updated.UpdatedBy)
	assert.Equal(t, models.Tuesday, updated.Slot.DayOfWeek)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, models.EventScheduleUpdated, notifier.sent[0].EventType)
}

func TestScheduleServiceCancelWithMakeup(t *testing.T) {
	repo := newMockScheduleRepo()
	notifier := &recordingNotifier{}
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	cache := NewCacheService(nil, nil, nil, false)
	slots := &mockSlotResolver{}
	svc := NewScheduleService(repo, defaultCatalog(), slots, checker, staticCounter{}, staticCounter{}, cache, notifier, nil, nil, 0)

	created, err := svc.Create(context.Background(), validCreateRequest(), "user-1")
	require.NoError(t, err)

	// resolve a Saturday slot for the proposal; 2026-09-05 is a Saturday
	slot, err := slots.Resolve(context.Background(), ResolveTimeSlotRequest{
		DayOfWeek: intPtr(models.Saturday), StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), created.ID, CancelScheduleRequest{
		Reason: "teacher sick",
		Makeup: &MakeupProposalRequest{
			ProposedDate:       "2026-09-05",
			ProposedTimeSlotID: slot.ID,
			ProposedRoomID:     "r1",
		},
	}, "user-1")
	require.NoError(t, err)

	assert.True(t, cancelled.IsCancelled)
	assert.Equal(t, "teacher sick", cancelled.CancellationReason)
	require.NotNil(t, repo.lastMakeup)
	assert.Equal(t, models.MakeupPending, repo.lastMakeup.Status)

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, models.EventScheduleCancelled, notifier.sent[0].EventType)
	assert.Equal(t, models.EventMakeupRequested, notifier.sent[1].EventType)
}

func TestScheduleServiceCancelRejectsWeekdayMismatch(t *testing.T) {
	repo := newMockScheduleRepo()
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	cache := NewCacheService(nil, nil, nil, false)
	slots := &mockSlotResolver{}
	svc := NewScheduleService(repo, defaultCatalog(), slots, checker, staticCounter{}, staticCounter{}, cache, &recordingNotifier{}, nil, nil, 0)

	created, err := svc.Create(context.Background(), validCreateRequest(), "user-1")
	require.NoError(t, err)

	slot, err := slots.Resolve(context.Background(), ResolveTimeSlotRequest{
		DayOfWeek: intPtr(models.Saturday), StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)

	// 2026-09-04 is a Friday, the slot is a Saturday slot
	_, err = svc.Cancel(context.Background(), created.ID, CancelScheduleRequest{
		Reason: "conflict",
		Makeup: &MakeupProposalRequest{
			ProposedDate:       "2026-09-04",
			ProposedTimeSlotID: slot.ID,
			ProposedRoomID:     "r1",
		},
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceCancelTwice(t *testing.T) {
	repo := newMockScheduleRepo()
	svc := newScheduleService(repo, defaultCatalog(), &recordingNotifier{})

	created, err := svc.Create(context.Background(), validCreateRequest(), "user-1")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), created.ID, CancelScheduleRequest{Reason: "first"}, "user-1")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), created.ID, CancelScheduleRequest{Reason: "second"}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestScheduleServiceCancelLostRace(t *testing.T) {
	repo := newMockScheduleRepo()
	notifier := &recordingNotifier{}
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	cache := NewCacheService(nil, nil, nil, false)
	slots := &mockSlotResolver{}
	svc := NewScheduleService(repo, defaultCatalog(), slots, checker, staticCounter{}, staticCounter{}, cache, notifier, nil, nil, 0)

	created, err := svc.Create(context.Background(), validCreateRequest(), "user-1")
	require.NoError(t, err)

	slot, err := slots.Resolve(context.Background(), ResolveTimeSlotRequest{
		DayOfWeek: intPtr(models.Saturday), StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)

	// pre-read sees an open schedule, but a concurrent cancel flips it before
	// the guarded UPDATE runs
	repo.cancelErr = sql.ErrNoRows

	_, err = svc.Cancel(context.Background(), created.ID, CancelScheduleRequest{
		Reason: "room flooded",
		Makeup: &MakeupProposalRequest{
			ProposedDate:       "2026-09-05",
			ProposedTimeSlotID: slot.ID,
			ProposedRoomID:     "r1",
		},
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.lastMakeup)
	assert.Empty(t, notifier.sent)
}

func TestScheduleServiceCheckConflicts(t *testing.T) {
	termStart := testDate(2026, time.September, 1)
	termEnd := testDate(2026, time.December, 18)
	existing := testBooking("s1", "t1", "r2", models.Monday, "09:00", "10:00", termStart, termEnd)

	repo := newMockScheduleRepo()
	checker := NewConflictChecker(&mockCandidateReader{
		byTeacher: map[string][]models.ScheduleDetail{"t1": {existing}},
	}, &mockUnavailabilityReader{})
	cache := NewCacheService(nil, nil, nil, false)
	svc := NewScheduleService(repo, defaultCatalog(), &mockSlotResolver{}, checker, staticCounter{}, staticCounter{}, cache, &recordingNotifier{}, nil, nil, 0)

	result, err := svc.CheckConflicts(context.Background(), CheckConflictsRequest{
		TeacherID: "t1",
		RoomID:    "r1",
		DayOfWeek: intPtr(models.Monday),
		StartTime: "09:30",
		EndTime:   "10:30",
		StartDate: "2026-09-01",
		EndDate:   "2026-12-18",
	})
	require.NoError(t, err)
	assert.True(t, result.HasConflicts)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, models.ConflictTeacherDoubleBooking, result.Findings[0].ConflictType)
	assert.Empty(t, repo.schedules)
}

func TestScheduleServiceWeekly(t *testing.T) {
	repo := newMockScheduleRepo()
	termStart := testDate(2026, time.September, 1)
	termEnd := testDate(2026, time.December, 18)
	repo.weekRows = []models.ScheduleDetail{
		testBooking("s1", "t1", "r1", models.Tuesday, "09:00", "10:00", termStart, termEnd),
		// ends before this week, must be filtered out of its day
		testBooking("s2", "t1", "r1", models.Wednesday, "09:00", "10:00", termStart, testDate(2026, time.September, 30)),
	}
	svc := newScheduleService(repo, defaultCatalog(), &recordingNotifier{})

	// anchor mid-week; 2026-10-07 is a Wednesday, week starts Monday 2026-10-05
	week, err := svc.Weekly(context.Background(), testDate(2026, time.October, 7), "", "")
	require.NoError(t, err)

	assert.Equal(t, "2026-10-05", week.WeekStart)
	assert.Equal(t, "2026-10-11", week.WeekEnd)
	require.Len(t, week.Days, 7)

	assert.Equal(t, "Monday", week.Days[0].DayName)
	assert.Empty(t, week.Days[0].Schedules)
	require.Len(t, week.Days[1].Schedules, 1)
	assert.Equal(t, "s1", week.Days[1].Schedules[0].ID)
	assert.Empty(t, week.Days[2].Schedules)
}

func TestScheduleServiceStats(t *testing.T) {
	repo := newMockScheduleRepo()
	repo.stats = models.ScheduleStats{TotalSchedules: 10, ActiveSchedules: 8, CancelledSchedules: 2}
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	cache := NewCacheService(nil, nil, nil, false)
	svc := NewScheduleService(repo, defaultCatalog(), &mockSlotResolver{}, checker, staticCounter{value: 3}, staticCounter{value: 4}, cache, &recordingNotifier{}, nil, nil, 0)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalSchedules)
	assert.Equal(t, 3, stats.PendingMakeups)
	assert.Equal(t, 4, stats.UnresolvedConflicts)
}
