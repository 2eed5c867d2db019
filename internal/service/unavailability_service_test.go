package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type mockUnavailabilityRepo struct {
	entries map[string]*models.TeacherUnavailability
}

func newMockUnavailabilityRepo() *mockUnavailabilityRepo {
	return &mockUnavailabilityRepo{entries: make(map[string]*models.TeacherUnavailability)}
}

func (m *mockUnavailabilityRepo) Create(ctx context.Context, entry *models.TeacherUnavailability) error {
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("unavail-%d", len(m.entries)+1)
	}
	entry.Active = true
	stored := *entry
	m.entries[entry.ID] = &stored
	return nil
}

func (m *mockUnavailabilityRepo) List(ctx context.Context, filter models.UnavailabilityFilter) ([]models.TeacherUnavailability, int, error) {
	var out []models.TeacherUnavailability
	for _, entry := range m.entries {
		if !entry.Active {
			continue
		}
		if filter.TeacherID != "" && entry.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, *entry)
	}
	return out, len(out), nil
}

func (m *mockUnavailabilityRepo) Deactivate(ctx context.Context, id string) error {
	entry, ok := m.entries[id]
	if !ok || !entry.Active {
		return sql.ErrNoRows
	}
	entry.Active = false
	return nil
}

func newUnavailabilityService(repo *mockUnavailabilityRepo) *UnavailabilityService {
	return NewUnavailabilityService(repo, defaultCatalog(), nil, nil)
}

func TestUnavailabilityServiceCreateAllDay(t *testing.T) {
	repo := newMockUnavailabilityRepo()
	svc := newUnavailabilityService(repo)

	entry, err := svc.Create(context.Background(), CreateUnavailabilityRequest{
		TeacherID: "t1",
		StartDate: "2026-10-05",
		EndDate:   "2026-10-09",
		Type:      models.UnavailabilityVacation,
		IsAllDay:  true,
	}, "user-1")
	require.NoError(t, err)

	assert.True(t, entry.IsAllDay)
	assert.Nil(t, entry.StartTime)
	assert.Nil(t, entry.EndTime)
	assert.Len(t, repo.entries, 1)
}

func TestUnavailabilityServiceCreatePartialDay(t *testing.T) {
	svc := newUnavailabilityService(newMockUnavailabilityRepo())

	entry, err := svc.Create(context.Background(), CreateUnavailabilityRequest{
		TeacherID: "t1",
		StartDate: "2026-10-05",
		EndDate:   "2026-10-05",
		StartTime: strPtr("13:00"),
		EndTime:   strPtr("17:00"),
		Type:      models.UnavailabilityMeeting,
	}, "user-1")
	require.NoError(t, err)

	require.NotNil(t, entry.StartTime)
	assert.Equal(t, "13:00", *entry.StartTime)
}

func TestUnavailabilityServiceCreatePartialDayRequiresTimes(t *testing.T) {
	svc := newUnavailabilityService(newMockUnavailabilityRepo())

	_, err := svc.Create(context.Background(), CreateUnavailabilityRequest{
		TeacherID: "t1",
		StartDate: "2026-10-05",
		EndDate:   "2026-10-05",
		Type:      models.UnavailabilityMeeting,
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUnavailabilityServiceCreateRejectsReversedTimes(t *testing.T) {
	svc := newUnavailabilityService(newMockUnavailabilityRepo())

	_, err := svc.Create(context.Background(), CreateUnavailabilityRequest{
		TeacherID: "t1",
		StartDate: "2026-10-05",
		EndDate:   "2026-10-05",
		StartTime: strPtr("17:00"),
		EndTime:   strPtr("13:00"),
		Type:      models.UnavailabilityMeeting,
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestUnavailabilityServiceCreateRejectsUnknownType(t *testing.T) {
	svc := newUnavailabilityService(newMockUnavailabilityRepo())

	_, err := svc.Create(context.Background(), CreateUnavailabilityRequest{
		TeacherID: "t1",
		StartDate: "2026-10-05",
		EndDate:   "2026-10-09",
		Type:      "SABBATICAL",
		IsAllDay:  true,
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUnavailabilityServiceCreateRejectsUnknownTeacher(t *testing.T) {
	svc := newUnavailabilityService(newMockUnavailabilityRepo())

	_, err := svc.Create(context.Background(), CreateUnavailabilityRequest{
		TeacherID: "missing",
		StartDate: "2026-10-05",
		EndDate:   "2026-10-09",
		Type:      models.UnavailabilityVacation,
		IsAllDay:  true,
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUnavailabilityServiceDelete(t *testing.T) {
	repo := newMockUnavailabilityRepo()
	svc := newUnavailabilityService(repo)

	entry, err := svc.Create(context.Background(), CreateUnavailabilityRequest{
		TeacherID: "t1",
		StartDate: "2026-10-05",
		EndDate:   "2026-10-09",
		Type:      models.UnavailabilityVacation,
		IsAllDay:  true,
	}, "user-1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), entry.ID))

	err = svc.Delete(context.Background(), entry.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
