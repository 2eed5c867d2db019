package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edt-api/internal/models"
)

const makeupColumns = "id, original_schedule_id, proposed_date, proposed_time_slot_id, proposed_room_id, status, reason, booking_schedule_id, approved_by, approval_date, active, created_by, created_at, updated_at"

const makeupInsert = `INSERT INTO makeup_sessions (id, original_schedule_id, proposed_date, proposed_time_slot_id, proposed_room_id, status, reason, active, created_by, created_at, updated_at) VALUES (:id, :original_schedule_id, :proposed_date, :proposed_time_slot_id, :proposed_room_id, :status, :reason, :active, :created_by, :created_at, :updated_at)`

// MakeupRepository persists makeup session proposals and their transitions.
type MakeupRepository struct {
	db *sqlx.DB
}

// NewMakeupRepository creates a new makeup repository.
func NewMakeupRepository(db *sqlx.DB) *MakeupRepository {
	return &MakeupRepository{db: db}
}

// Create stores a new PENDING makeup session.
func (r *MakeupRepository) Create(ctx context.Context, makeup *models.MakeupSession) error {
	if makeup.ID == "" {
		makeup.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	makeup.Status = models.MakeupPending
	makeup.Active = true
	makeup.CreatedAt = now
	makeup.UpdatedAt = now

	if _, err := r.db.NamedExecContext(ctx, makeupInsert, makeup); err != nil {
		return fmt.Errorf("create makeup session: %w", err)
	}
	return nil
}

// FindByID loads a makeup session by id.
func (r *MakeupRepository) FindByID(ctx context.Context, id string) (*models.MakeupSession, error) {
	query := fmt.Sprintf("SELECT %s FROM makeup_sessions WHERE id = $1 AND active = TRUE", makeupColumns)
	var makeup models.MakeupSession
	if err := r.db.GetContext(ctx, &makeup, query, id); err != nil {
		return nil, err
	}
	return &makeup, nil
}

// List returns makeup sessions filtered by status or originating schedule.
func (r *MakeupRepository) List(ctx context.Context, filter models.MakeupFilter) ([]models.MakeupSession, int, error) {
	base := "FROM makeup_sessions m WHERE m.active = TRUE"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("m.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.OriginalScheduleID != "" {
		conditions = append(conditions, fmt.Sprintf("m.original_schedule_id = $%d", len(args)+1))
		args = append(args, filter.OriginalScheduleID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("m.original_schedule_id IN (SELECT id FROM schedules WHERE teacher_id = $%d)", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	cols := "m." + strings.ReplaceAll(makeupColumns, ", ", ", m.")
	query := fmt.Sprintf("SELECT %s %s ORDER BY m.created_at DESC LIMIT %d OFFSET %d", cols, base, size, offset)
	var makeups []models.MakeupSession
	if err := r.db.SelectContext(ctx, &makeups, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list makeup sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count makeup sessions: %w", err)
	}

	return makeups, total, nil
}

// CountPending returns the number of PENDING makeup sessions.
func (r *MakeupRepository) CountPending(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM makeup_sessions WHERE status = 'PENDING' AND active = TRUE`); err != nil {
		return 0, fmt.Errorf("count pending makeups: %w", err)
	}
	return total, nil
}

// ApproveWithBooking transitions a PENDING makeup to APPROVED and materialises
// the proposal as a one-day schedule booking, re-running the conflict check
// inside one serializable transaction so the approved slot cannot be stolen
// between validation and commit. Returns *models.BookingConflictError when
// the proposed slot is taken.
func (r *MakeupRepository) ApproveWithBooking(ctx context.Context, makeup *models.MakeupSession, booking *models.ScheduleDetail, approvedBy string) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin makeup approval: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = checkBookingConflicts(ctx, tx, booking, ""); err != nil {
		return err
	}

	now := time.Now().UTC()
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now
	if _, err = tx.NamedExecContext(ctx, scheduleInsert, &booking.Schedule); err != nil {
		return fmt.Errorf("materialise makeup booking: %w", err)
	}

	makeup.Status = models.MakeupApproved
	makeup.ApprovedBy = &approvedBy
	makeup.ApprovalDate = &now
	makeup.BookingScheduleID = &booking.ID
	makeup.UpdatedAt = now
	var res sql.Result
	res, err = tx.ExecContext(ctx, `UPDATE makeup_sessions SET status = $1, approved_by = $2, approval_date = $3, booking_schedule_id = $4, updated_at = $3 WHERE id = $5 AND status = 'PENDING'`,
		models.MakeupApproved, approvedBy, now, booking.ID, makeup.ID)
	if err != nil {
		return fmt.Errorf("approve makeup session: %w", err)
	}
	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit makeup approval: %w", err)
	}
	return nil
}

// Reject transitions a PENDING makeup to REJECTED with attribution.
func (r *MakeupRepository) Reject(ctx context.Context, id, rejectedBy string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE makeup_sessions SET status = $1, approved_by = $2, approval_date = $3, updated_at = $3 WHERE id = $4 AND status = 'PENDING'`,
		models.MakeupRejected, rejectedBy, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reject makeup session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Complete transitions an APPROVED makeup to its terminal COMPLETED state.
func (r *MakeupRepository) Complete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE makeup_sessions SET status = $1, updated_at = $2 WHERE id = $3 AND status = 'APPROVED'`,
		models.MakeupCompleted, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete makeup session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
