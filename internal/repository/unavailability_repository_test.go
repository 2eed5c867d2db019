package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edt-api/internal/models"
)

func unavailabilityRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "teacher_id", "start_date", "end_date", "start_time", "end_time",
		"unavailability_type", "reason", "is_all_day", "active", "created_by", "created_at", "updated_at",
	})
}

func TestUnavailabilityRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUnavailabilityRepository(db)

	mock.ExpectExec("INSERT INTO teacher_unavailabilities").
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.TeacherUnavailability{
		TeacherID: "t1",
		StartDate: time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, time.October, 9, 0, 0, 0, 0, time.UTC),
		Type:      models.UnavailabilityVacation,
		IsAllDay:  true,
	}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.True(t, entry.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnavailabilityRepositoryFindActiveForTeacher(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUnavailabilityRepository(db)

	from := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.October, 31, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM teacher_unavailabilities WHERE teacher_id = $1 AND start_date <= $2 AND end_date >= $3 AND active = TRUE ORDER BY id ASC")).
		WithArgs("t1", to, from).
		WillReturnRows(unavailabilityRows().AddRow(
			"u1", "t1", from, to, nil, nil,
			models.UnavailabilityVacation, "annual leave", true, true, nil, now, now,
		))

	entries, err := repo.FindActiveForTeacher(context.Background(), "t1", from, to)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsAllDay)
	assert.Nil(t, entries[0].StartTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnavailabilityRepositoryDeactivateMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUnavailabilityRepository(db)

	mock.ExpectExec("UPDATE teacher_unavailabilities SET active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), "missing")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
