package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edt-api/internal/models"
)

func testDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func testBooking(id, teacherID, roomID string, day int, startTime, endTime string, from, to time.Time) models.ScheduleDetail {
	return models.ScheduleDetail{
		Schedule: models.Schedule{
			ID:        id,
			Title:     "Session " + id,
			TeacherID: teacherID,
			RoomID:    roomID,
			StartDate: from,
			EndDate:   to,
			Active:    true,
		},
		Slot: models.TimeSlot{
			DayOfWeek: day,
			StartTime: startTime,
			EndTime:   endTime,
		},
	}
}

type mockCandidateReader struct {
	byRoom    map[string][]models.ScheduleDetail
	byTeacher map[string][]models.ScheduleDetail
}

func (m *mockCandidateReader) FindCandidatesByRoom(ctx context.Context, roomID string, dayOfWeek int, from, to time.Time, excludeID string) ([]models.ScheduleDetail, error) {
	return filterCandidates(m.byRoom[roomID], excludeID), nil
}

func (m *mockCandidateReader) FindCandidatesByTeacher(ctx context.Context, teacherID string, dayOfWeek int, from, to time.Time, excludeID string) ([]models.ScheduleDetail, error) {
	return filterCandidates(m.byTeacher[teacherID], excludeID), nil
}

func filterCandidates(candidates []models.ScheduleDetail, excludeID string) []models.ScheduleDetail {
	var out []models.ScheduleDetail
	for _, c := range candidates {
		if excludeID != "" && c.ID == excludeID {
			continue
		}
		out = append(out, c)
	}
	return out
}

type mockUnavailabilityReader struct {
	windows []models.TeacherUnavailability
}

func (m *mockUnavailabilityReader) FindActiveForTeacher(ctx context.Context, teacherID string, from, to time.Time) ([]models.TeacherUnavailability, error) {
	var out []models.TeacherUnavailability
	for _, w := range m.windows {
		if w.TeacherID == teacherID {
			out = append(out, w)
		}
	}
	return out, nil
}

func TestConflictCheckerDetectsRoomDoubleBooking(t *testing.T) {
	termStart := testDate(2026, time.September, 1)
	termEnd := testDate(2026, time.December, 18)

	existing := testBooking("s1", "t-other", "r1", models.Monday, "09:00", "10:00", termStart, termEnd)
	checker := NewConflictChecker(&mockCandidateReader{
		byRoom: map[string][]models.ScheduleDetail{"r1": {existing}},
	}, &mockUnavailabilityReader{})

	proposal := testBooking("", "t1", "r1", models.Monday, "09:30", "10:30", termStart, termEnd)
	findings, err := checker.Check(context.Background(), proposal, "")
	require.NoError(t, err)
	require.Len(t, findings, 1)

	assert.Equal(t, models.ConflictRoomDoubleBooking, findings[0].ConflictType)
	assert.Equal(t, models.SeverityHigh, findings[0].Severity)
	require.NotNil(t, findings[0].Blocking)
	assert.Equal(t, "s1", findings[0].Blocking.ScheduleID)
	assert.Equal(t, "room", findings[0].Blocking.Resource)
}

func TestConflictCheckerDetectsTeacherDoubleBooking(t *testing.T) {
	termStart := testDate(2026, time.September, 1)
	termEnd := testDate(2026, time.December, 18)

	existing := testBooking("s2", "t1", "r-other", models.Friday, "14:00", "16:00", termStart, termEnd)
	checker := NewConflictChecker(&mockCandidateReader{
		byTeacher: map[string][]models.ScheduleDetail{"t1": {existing}},
	}, &mockUnavailabilityReader{})

	proposal := testBooking("", "t1", "r1", models.Friday, "15:00", "17:00", termStart, termEnd)
	findings, err := checker.Check(context.Background(), proposal, "")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.ConflictTeacherDoubleBooking, findings[0].ConflictType)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
}

func TestConflictCheckerExcludesSelf(t *testing.T) {
	termStart := testDate(2026, time.September, 1)
	termEnd := testDate(2026, time.December, 18)

	existing := testBooking("s1", "t1", "r1", models.Monday, "09:00", "10:00", termStart, termEnd)
	checker := NewConflictChecker(&mockCandidateReader{
		byRoom:    map[string][]models.ScheduleDetail{"r1": {existing}},
		byTeacher: map[string][]models.ScheduleDetail{"t1": {existing}},
	}, &mockUnavailabilityReader{})

	proposal := testBooking("s1", "t1", "r1", models.Monday, "09:00", "10:00", termStart, termEnd)
	findings, err := checker.Check(context.Background(), proposal, "s1")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestConflictCheckerNoOverlapNoFindings(t *testing.T) {
	termStart := testDate(2026, time.September, 1)
	termEnd := testDate(2026, time.December, 18)

	existing := testBooking("s1", "t1", "r1", models.Monday, "08:00", "09:00", termStart, termEnd)
	checker := NewConflictChecker(&mockCandidateReader{
		byRoom:    map[string][]models.ScheduleDetail{"r1": {existing}},
		byTeacher: map[string][]models.ScheduleDetail{"t1": {existing}},
	}, &mockUnavailabilityReader{})

	proposal := testBooking("", "t1", "r1", models.Monday, "09:00", "10:00", termStart, termEnd)
	findings, err := checker.Check(context.Background(), proposal, "")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestConflictCheckerReportsTeacherUnavailable(t *testing.T) {
	termStart := testDate(2026, time.September, 1)
	termEnd := testDate(2026, time.December, 18)

	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{
		windows: []models.TeacherUnavailability{{
			TeacherID: "t1",
			StartDate: testDate(2026, time.October, 5),
			EndDate:   testDate(2026, time.October, 9),
			Type:      models.UnavailabilityConference,
			IsAllDay:  true,
			Active:    true,
		}},
	})

	// Wednesday slot, window Mon-Fri covers it
	proposal := testBooking("", "t1", "r1", models.Wednesday, "09:00", "10:00", termStart, termEnd)
	findings, err := checker.Check(context.Background(), proposal, "")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.ConflictTeacherUnavailable, findings[0].ConflictType)
	assert.Equal(t, models.SeverityHigh, findings[0].Severity)
	assert.Nil(t, findings[0].Blocking)
}

func TestConflictCheckerSkipsUnavailabilityOutsideSlot(t *testing.T) {
	termStart := testDate(2026, time.September, 1)
	termEnd := testDate(2026, time.December, 18)

	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{
		windows: []models.TeacherUnavailability{{
			TeacherID: "t1",
			StartDate: testDate(2026, time.October, 5),
			EndDate:   testDate(2026, time.October, 9),
			StartTime: strPtr("13:00"),
			EndTime:   strPtr("17:00"),
			Type:      models.UnavailabilityMeeting,
			Active:    true,
		}},
	})

	// morning slot does not intersect the afternoon window
	proposal := testBooking("", "t1", "r1", models.Wednesday, "09:00", "10:00", termStart, termEnd)
	findings, err := checker.Check(context.Background(), proposal, "")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestConflictCheckerSkipsUnavailabilityOnOtherWeekday(t *testing.T) {
	termStart := testDate(2026, time.September, 1)
	termEnd := testDate(2026, time.December, 18)

	// 2026-10-10 and 2026-10-11 are Saturday and Sunday
	checker := NewConflictChecker(&mockCandidateReader{}, &mockUnavailabilityReader{
		windows: []models.TeacherUnavailability{{
			TeacherID: "t1",
			StartDate: testDate(2026, time.October, 10),
			EndDate:   testDate(2026, time.October, 11),
			Type:      models.UnavailabilityPersonal,
			IsAllDay:  true,
			Active:    true,
		}},
	})

	proposal := testBooking("", "t1", "r1", models.Wednesday, "09:00", "10:00", termStart, termEnd)
	findings, err := checker.Check(context.Background(), proposal, "")
	require.NoError(t, err)
	assert.Empty(t, findings)
}
