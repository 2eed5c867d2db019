package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edt-api/internal/models"
)

func pendingMakeup() *models.MakeupSession {
	return &models.MakeupSession{
		ID:                 "mk-1",
		OriginalScheduleID: "orig-1",
		ProposedDate:       time.Date(2026, time.September, 5, 0, 0, 0, 0, time.UTC),
		ProposedTimeSlotID: "slot-2",
		ProposedRoomID:     "r1",
		Status:             models.MakeupPending,
	}
}

func TestMakeupRepositoryApproveWithBooking(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMakeupRepository(db)

	day := time.Date(2026, time.September, 5, 0, 0, 0, 0, time.UTC)
	booking := proposalFor(5, "09:00", "10:00", day, day)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ WHERE s\.room_id = \$1`).
		WillReturnRows(sqlmock.NewRows(scheduleDetailCols))
	mock.ExpectQuery(`SELECT .+ WHERE s\.teacher_id = \$1`).
		WillReturnRows(sqlmock.NewRows(scheduleDetailCols))
	mock.ExpectExec("INSERT INTO schedules").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE makeup_sessions SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	makeup := pendingMakeup()
	require.NoError(t, repo.ApproveWithBooking(context.Background(), makeup, booking, "admin-1"))

	assert.Equal(t, models.MakeupApproved, makeup.Status)
	assert.NotEmpty(t, booking.ID)
	require.NotNil(t, makeup.BookingScheduleID)
	assert.Equal(t, booking.ID, *makeup.BookingScheduleID)
	require.NotNil(t, makeup.ApprovedBy)
	assert.Equal(t, "admin-1", *makeup.ApprovedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupRepositoryApproveWithBookingConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMakeupRepository(db)

	day := time.Date(2026, time.September, 5, 0, 0, 0, 0, time.UTC)
	booking := proposalFor(5, "09:00", "10:00", day, day)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ WHERE s\.room_id = \$1`).
		WillReturnRows(scheduleRow(sqlmock.NewRows(scheduleDetailCols), "taken", 5, "09:30", "10:30", day, day))
	mock.ExpectRollback()

	makeup := pendingMakeup()
	err := repo.ApproveWithBooking(context.Background(), makeup, booking, "admin-1")
	require.Error(t, err)

	var conflict *models.BookingConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "room", conflict.Resource)
	assert.Equal(t, "taken", conflict.Blocking.ScheduleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupRepositoryApproveWithBookingPendingGone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMakeupRepository(db)

	day := time.Date(2026, time.September, 5, 0, 0, 0, 0, time.UTC)
	booking := proposalFor(5, "09:00", "10:00", day, day)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ WHERE s\.room_id = \$1`).
		WillReturnRows(sqlmock.NewRows(scheduleDetailCols))
	mock.ExpectQuery(`SELECT .+ WHERE s\.teacher_id = \$1`).
		WillReturnRows(sqlmock.NewRows(scheduleDetailCols))
	mock.ExpectExec("INSERT INTO schedules").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE makeup_sessions SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApproveWithBooking(context.Background(), pendingMakeup(), booking, "admin-1")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupRepositoryRejectMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMakeupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE makeup_sessions SET status = $1, approved_by = $2, approval_date = $3, updated_at = $3 WHERE id = $4 AND status = 'PENDING'")).
		WithArgs(models.MakeupRejected, "admin-1", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Reject(context.Background(), "missing", "admin-1")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupRepositoryComplete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMakeupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE makeup_sessions SET status = $1, updated_at = $2 WHERE id = $3 AND status = 'APPROVED'")).
		WithArgs(models.MakeupCompleted, sqlmock.AnyArg(), "mk-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Complete(context.Background(), "mk-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMakeupRepositoryCountPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMakeupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM makeup_sessions WHERE status = 'PENDING' AND active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	total, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
