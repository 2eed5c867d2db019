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

const scheduleColumns = `s.id, s.title, s.subject_id, s.teacher_id, s.room_id, s.time_slot_id, s.start_date, s.end_date, s.student_count, s.notes, s.is_cancelled, s.cancellation_reason, s.active, s.created_by, s.updated_by, s.created_at, s.updated_at, ts.id AS "slot.id", ts.day_of_week AS "slot.day_of_week", ts.start_time AS "slot.start_time", ts.end_time AS "slot.end_time", ts.duration_minutes AS "slot.duration_minutes", ts.name AS "slot.name", ts.active AS "slot.active", ts.created_at AS "slot.created_at", ts.updated_at AS "slot.updated_at"`

const scheduleInsert = `INSERT INTO schedules (id, title, subject_id, teacher_id, room_id, time_slot_id, start_date, end_date, student_count, notes, is_cancelled, cancellation_reason, active, created_by, updated_by, created_at, updated_at) VALUES (:id, :title, :subject_id, :teacher_id, :room_id, :time_slot_id, :start_date, :end_date, :student_count, :notes, :is_cancelled, :cancellation_reason, :active, :created_by, :updated_by, :created_at, :updated_at)`

// ScheduleRepository provides persistence for recurring session bookings.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// List returns schedules with optional filtering and pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	base := "FROM schedules s JOIN time_slots ts ON ts.id = s.time_slot_id WHERE s.active = TRUE"
	var conditions []string
	var args []interface{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("s.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("s.room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("ts.day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}
	if filter.IsCancelled != nil {
		conditions = append(conditions, fmt.Sprintf("s.is_cancelled = $%d", len(args)+1))
		args = append(args, *filter.IsCancelled)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("s.end_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("s.start_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"start_date":  "s.start_date",
		"day_of_week": "ts.day_of_week",
		"start_time":  "ts.start_time",
		"created_at":  "s.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, ts.day_of_week ASC, ts.start_time ASC LIMIT %d OFFSET %d", scheduleColumns, base, column, order, size, offset)
	var schedules []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	return schedules, total, nil
}

// FindByID loads a schedule with its time slot.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules s JOIN time_slots ts ON ts.id = s.time_slot_id WHERE s.id = $1", scheduleColumns)
	var sched models.ScheduleDetail
	if err := r.db.GetContext(ctx, &sched, query, id); err != nil {
		return nil, err
	}
	return &sched, nil
}

// FindCandidatesByRoom returns active, non-cancelled schedules for a room
// whose slot weekday matches and whose date range intersects [from, to],
// ordered by id so conflict detection is deterministic for a fixed snapshot.
func (r *ScheduleRepository) FindCandidatesByRoom(ctx context.Context, roomID string, dayOfWeek int, from, to time.Time, excludeID string) ([]models.ScheduleDetail, error) {
	return findCandidates(ctx, r.db, "s.room_id", roomID, dayOfWeek, from, to, excludeID)
}

// FindCandidatesByTeacher mirrors FindCandidatesByRoom keyed by teacher.
func (r *ScheduleRepository) FindCandidatesByTeacher(ctx context.Context, teacherID string, dayOfWeek int, from, to time.Time, excludeID string) ([]models.ScheduleDetail, error) {
	return findCandidates(ctx, r.db, "s.teacher_id", teacherID, dayOfWeek, from, to, excludeID)
}

func findCandidates(ctx context.Context, q sqlx.QueryerContext, keyColumn, keyValue string, dayOfWeek int, from, to time.Time, excludeID string) ([]models.ScheduleDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules s JOIN time_slots ts ON ts.id = s.time_slot_id WHERE %s = $1 AND ts.day_of_week = $2 AND s.start_date <= $3 AND s.end_date >= $4 AND s.active = TRUE AND s.is_cancelled = FALSE AND s.id <> $5 ORDER BY s.id ASC`, scheduleColumns, keyColumn)
	var schedules []models.ScheduleDetail
	if err := sqlx.SelectContext(ctx, q, &schedules, query, keyValue, dayOfWeek, to, from, excludeID); err != nil {
		return nil, fmt.Errorf("find booking candidates: %w", err)
	}
	return schedules, nil
}

// CreateChecked inserts a schedule after re-running the room and teacher
// candidate queries inside a serializable transaction, closing the race where
// two concurrent writers both validate against a stale snapshot. Returns a
// *models.BookingConflictError when an overlapping booking exists.
func (r *ScheduleRepository) CreateChecked(ctx context.Context, sched *models.ScheduleDetail, programIDs []string) error {
	return r.writeChecked(ctx, sched, "", func(ctx context.Context, tx *sqlx.Tx) error {
		now := time.Now().UTC()
		if sched.ID == "" {
			sched.ID = uuid.NewString()
		}
		sched.CreatedAt = now
		sched.UpdatedAt = now

		if _, err := tx.NamedExecContext(ctx, scheduleInsert, &sched.Schedule); err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
		for _, programID := range programIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO schedule_programs (id, schedule_id, program_id, created_at) VALUES ($1, $2, $3, $4)`, uuid.NewString(), sched.ID, programID, now); err != nil {
				return fmt.Errorf("link schedule program: %w", err)
			}
		}
		return nil
	})
}

// UpdateChecked rewrites a schedule after re-validating inside the same
// serializable region, excluding the schedule's own id from candidates.
func (r *ScheduleRepository) UpdateChecked(ctx context.Context, sched *models.ScheduleDetail) error {
	return r.writeChecked(ctx, sched, sched.ID, func(ctx context.Context, tx *sqlx.Tx) error {
		sched.UpdatedAt = time.Now().UTC()
		const query = `UPDATE schedules SET title = :title, subject_id = :subject_id, teacher_id = :teacher_id, room_id = :room_id, time_slot_id = :time_slot_id, start_date = :start_date, end_date = :end_date, student_count = :student_count, notes = :notes, updated_by = :updated_by, updated_at = :updated_at WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, &sched.Schedule); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		return nil
	})
}

func (r *ScheduleRepository) writeChecked(ctx context.Context, sched *models.ScheduleDetail, excludeID string, write func(context.Context, *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin schedule write: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = checkBookingConflicts(ctx, tx, sched, excludeID); err != nil {
		return err
	}
	if err = write(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule write: %w", err)
	}
	return nil
}

// checkBookingConflicts applies the assignment conflict predicate against all
// room and teacher candidates visible to the transaction.
func checkBookingConflicts(ctx context.Context, q sqlx.QueryerContext, sched *models.ScheduleDetail, excludeID string) error {
	roomCandidates, err := findCandidates(ctx, q, "s.room_id", sched.RoomID, sched.Slot.DayOfWeek, sched.StartDate, sched.EndDate, excludeID)
	if err != nil {
		return err
	}
	for _, candidate := range roomCandidates {
		if models.AssignmentsConflict(*sched, candidate) {
			return bookingConflict("room", candidate)
		}
	}

	teacherCandidates, err := findCandidates(ctx, q, "s.teacher_id", sched.TeacherID, sched.Slot.DayOfWeek, sched.StartDate, sched.EndDate, excludeID)
	if err != nil {
		return err
	}
	for _, candidate := range teacherCandidates {
		if models.AssignmentsConflict(*sched, candidate) {
			return bookingConflict("teacher", candidate)
		}
	}
	return nil
}

func bookingConflict(resource string, blocking models.ScheduleDetail) error {
	return &models.BookingConflictError{
		Resource: resource,
		Message:  fmt.Sprintf("%s already booked by %q on %s %s-%s", resource, blocking.Title, models.DayName(blocking.Slot.DayOfWeek), blocking.Slot.StartTime, blocking.Slot.EndTime),
		Blocking: models.BookingConflict{
			ScheduleID: blocking.ID,
			Title:      blocking.Title,
			TeacherID:  blocking.TeacherID,
			RoomID:     blocking.RoomID,
			DayOfWeek:  blocking.Slot.DayOfWeek,
			StartTime:  blocking.Slot.StartTime,
			EndTime:    blocking.Slot.EndTime,
			Resource:   resource,
		},
	}
}

// Cancel marks a schedule cancelled and, when a makeup proposal is supplied,
// creates the PENDING makeup session in the same transaction. The proposal is
// not conflict-checked here; validation happens at approval.
func (r *ScheduleRepository) Cancel(ctx context.Context, id, reason string, updatedBy *string, makeup *models.MakeupSession) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel schedule: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	var res sql.Result
	// is_cancelled = FALSE makes concurrent cancels race for one row update,
	// so only the winner inserts the makeup session
	res, err = tx.ExecContext(ctx, `UPDATE schedules SET is_cancelled = TRUE, cancellation_reason = $1, updated_by = $2, updated_at = $3 WHERE id = $4 AND active = TRUE AND is_cancelled = FALSE`, reason, updatedBy, now, id)
	if err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}
	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if makeup != nil {
		if makeup.ID == "" {
			makeup.ID = uuid.NewString()
		}
		makeup.OriginalScheduleID = id
		makeup.Status = models.MakeupPending
		makeup.Active = true
		makeup.CreatedAt = now
		makeup.UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, makeupInsert, makeup); err != nil {
			return fmt.Errorf("create makeup session: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel schedule: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a schedule; deactivated rows are excluded from all
// conflict computation but retained for audit history.
func (r *ScheduleRepository) Deactivate(ctx context.Context, id string, updatedBy *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE schedules SET active = FALSE, updated_by = $1, updated_at = $2 WHERE id = $3 AND active = TRUE`, updatedBy, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate schedule: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListActiveInWindow returns active, non-cancelled schedules whose date range
// intersects [from, to], ordered by id. Used by the reconciliation scanner.
func (r *ScheduleRepository) ListActiveInWindow(ctx context.Context, from, to time.Time) ([]models.ScheduleDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules s JOIN time_slots ts ON ts.id = s.time_slot_id WHERE s.active = TRUE AND s.is_cancelled = FALSE AND s.start_date <= $1 AND s.end_date >= $2 ORDER BY s.id ASC`, scheduleColumns)
	var schedules []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &schedules, query, to, from); err != nil {
		return nil, fmt.Errorf("list schedules in window: %w", err)
	}
	return schedules, nil
}

// ListForWeek returns active, non-cancelled schedules intersecting the week,
// optionally narrowed by teacher or room, ordered for timetable rendering.
func (r *ScheduleRepository) ListForWeek(ctx context.Context, weekStart, weekEnd time.Time, teacherID, roomID string) ([]models.ScheduleDetail, error) {
	base := fmt.Sprintf(`SELECT %s FROM schedules s JOIN time_slots ts ON ts.id = s.time_slot_id WHERE s.active = TRUE AND s.is_cancelled = FALSE AND s.start_date <= $1 AND s.end_date >= $2`, scheduleColumns)
	args := []interface{}{weekEnd, weekStart}
	if teacherID != "" {
		base += fmt.Sprintf(" AND s.teacher_id = $%d", len(args)+1)
		args = append(args, teacherID)
	}
	if roomID != "" {
		base += fmt.Sprintf(" AND s.room_id = $%d", len(args)+1)
		args = append(args, roomID)
	}
	base += " ORDER BY ts.day_of_week ASC, ts.start_time ASC"

	var schedules []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &schedules, base, args...); err != nil {
		return nil, fmt.Errorf("list weekly schedules: %w", err)
	}
	return schedules, nil
}

// Stats aggregates booking counts for the statistics endpoint.
func (r *ScheduleRepository) Stats(ctx context.Context) (*models.ScheduleStats, error) {
	const query = `SELECT
		COUNT(*) FILTER (WHERE active = TRUE) AS total_schedules,
		COUNT(*) FILTER (WHERE active = TRUE AND is_cancelled = FALSE) AS active_schedules,
		COUNT(*) FILTER (WHERE active = TRUE AND is_cancelled = TRUE) AS cancelled_schedules
	FROM schedules`
	var stats models.ScheduleStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("schedule stats: %w", err)
	}
	return &stats, nil
}

// ProgramIDs returns the program associations for a schedule.
func (r *ScheduleRepository) ProgramIDs(ctx context.Context, scheduleID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT program_id FROM schedule_programs WHERE schedule_id = $1 ORDER BY program_id ASC`, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule programs: %w", err)
	}
	return ids, nil
}
