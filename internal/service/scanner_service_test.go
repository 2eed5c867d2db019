package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edt-api/internal/models"
)

type mockScanReader struct {
	schedules []models.ScheduleDetail
}

func (m *mockScanReader) ListActiveInWindow(ctx context.Context, from, to time.Time) ([]models.ScheduleDetail, error) {
	return m.schedules, nil
}

// gatedScanReader parks the scan inside the window query until released,
// keeping the scanner's in-progress flag held for overlap tests.
type gatedScanReader struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedScanReader) ListActiveInWindow(ctx context.Context, from, to time.Time) ([]models.ScheduleDetail, error) {
	g.entered <- struct{}{}
	<-g.release
	return nil, nil
}

type mockRecorder struct {
	recorded []models.ScheduleConflict
	open     map[string]bool
}

func (m *mockRecorder) Record(ctx context.Context, conflict *models.ScheduleConflict) (bool, error) {
	if m.open == nil {
		m.open = make(map[string]bool)
	}
	key := conflict.Schedule1ID + "|" + conflict.ConflictType
	if m.open[key] {
		return false, nil
	}
	m.open[key] = true
	m.recorded = append(m.recorded, *conflict)
	return true, nil
}

func scanWindow() (time.Time, time.Time) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 30)
}

func TestScannerDetectsRoomClash(t *testing.T) {
	from, to := scanWindow()
	first := testBooking("s1", "t1", "r1", models.Monday, "09:00", "10:00", from, to)
	second := testBooking("s2", "t2", "r1", models.Monday, "09:30", "10:30", from, to)

	recorder := &mockRecorder{}
	notifier := &recordingNotifier{}
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	scanner := NewScannerService(&mockScanReader{schedules: []models.ScheduleDetail{first, second}}, recorder, checker, notifier, nil, nil, time.Minute, 30)

	result, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Detected)
	require.Len(t, recorder.recorded, 1)

	conflict := recorder.recorded[0]
	assert.Equal(t, models.ConflictRoomDoubleBooking, conflict.ConflictType)
	assert.Equal(t, models.SeverityHigh, conflict.Severity)
	// the later schedule is recorded as schedule1
	assert.Equal(t, "s2", conflict.Schedule1ID)
	require.NotNil(t, conflict.Schedule2ID)
	assert.Equal(t, "s1", *conflict.Schedule2ID)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, models.EventConflictDetected, notifier.sent[0].EventType)
	assert.Equal(t, "t2", notifier.sent[0].RecipientID)
}

func TestScannerDetectsTeacherClashAsCritical(t *testing.T) {
	from, to := scanWindow()
	first := testBooking("s1", "t1", "r1", models.Tuesday, "09:00", "10:00", from, to)
	second := testBooking("s2", "t1", "r2", models.Tuesday, "09:00", "10:00", from, to)

	recorder := &mockRecorder{}
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	scanner := NewScannerService(&mockScanReader{schedules: []models.ScheduleDetail{first, second}}, recorder, checker, nil, nil, nil, time.Minute, 30)

	result, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Detected)
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, models.ConflictTeacherDoubleBooking, recorder.recorded[0].ConflictType)
	assert.Equal(t, models.SeverityCritical, recorder.recorded[0].Severity)
}

func TestScannerRepeatedScansConverge(t *testing.T) {
	from, to := scanWindow()
	first := testBooking("s1", "t1", "r1", models.Monday, "09:00", "10:00", from, to)
	second := testBooking("s2", "t2", "r1", models.Monday, "09:00", "10:00", from, to)

	recorder := &mockRecorder{}
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	scanner := NewScannerService(&mockScanReader{schedules: []models.ScheduleDetail{first, second}}, recorder, checker, nil, nil, nil, time.Minute, 30)

	result, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Detected)

	result, err = scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Detected)
	assert.Len(t, recorder.recorded, 1)
}

func TestScannerIgnoresCancelledSchedules(t *testing.T) {
	from, to := scanWindow()
	first := testBooking("s1", "t1", "r1", models.Monday, "09:00", "10:00", from, to)
	second := testBooking("s2", "t2", "r1", models.Monday, "09:00", "10:00", from, to)
	second.IsCancelled = true

	recorder := &mockRecorder{}
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	scanner := NewScannerService(&mockScanReader{schedules: []models.ScheduleDetail{first, second}}, recorder, checker, nil, nil, nil, time.Minute, 30)

	result, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Detected)
	assert.Empty(t, recorder.recorded)
}

func TestScannerRejectsOverlappingScans(t *testing.T) {
	reader := &gatedScanReader{entered: make(chan struct{}, 2), release: make(chan struct{})}
	recorder := &mockRecorder{}
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{})
	scanner := NewScannerService(reader, recorder, checker, nil, nil, nil, time.Minute, 30)

	firstDone := make(chan error, 1)
	go func() {
		_, err := scanner.ScanOnce(context.Background())
		firstDone <- err
	}()

	select {
	case <-reader.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first scan never started")
	}

	// the first scan is parked mid-query; a second attempt must not pretend
	// it swept anything
	result, err := scanner.ScanOnce(context.Background())
	assert.Nil(t, result)
	require.ErrorIs(t, err, ErrScanInProgress)

	close(reader.release)
	select {
	case err := <-firstDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first scan never finished")
	}

	// with the flag released the next scan runs normally
	result, err = scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
}

func TestScannerRecordsTeacherUnavailable(t *testing.T) {
	from, to := scanWindow()
	sched := testBooking("s1", "t1", "r1", models.WeekdayIndex(from.AddDate(0, 0, 3)), "09:00", "10:00", from, to)

	recorder := &mockRecorder{}
	notifier := &recordingNotifier{}
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{
		windows: []models.TeacherUnavailability{{
			TeacherID: "t1",
			StartDate: from,
			EndDate:   from.AddDate(0, 0, 7),
			Type:      models.UnavailabilitySickLeave,
			IsAllDay:  true,
			Active:    true,
		}},
	})
	scanner := NewScannerService(&mockScanReader{schedules: []models.ScheduleDetail{sched}}, recorder, checker, notifier, nil, nil, time.Minute, 30)

	result, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Detected)
	require.Len(t, recorder.recorded, 1)

	conflict := recorder.recorded[0]
	assert.Equal(t, models.ConflictTeacherUnavailable, conflict.ConflictType)
	assert.Equal(t, models.SeverityHigh, conflict.Severity)
	assert.Equal(t, "s1", conflict.Schedule1ID)
	assert.Nil(t, conflict.Schedule2ID)
}
