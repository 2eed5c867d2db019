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

const unavailabilityColumns = "id, teacher_id, start_date, end_date, start_time, end_time, unavailability_type, reason, is_all_day, active, created_by, created_at, updated_at"

// UnavailabilityRepository persists teacher unavailability windows.
type UnavailabilityRepository struct {
	db *sqlx.DB
}

// NewUnavailabilityRepository creates a new unavailability repository.
func NewUnavailabilityRepository(db *sqlx.DB) *UnavailabilityRepository {
	return &UnavailabilityRepository{db: db}
}

// Create stores a new unavailability window.
func (r *UnavailabilityRepository) Create(ctx context.Context, entry *models.TeacherUnavailability) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.Active = true
	entry.CreatedAt = now
	entry.UpdatedAt = now

	const query = `INSERT INTO teacher_unavailabilities (id, teacher_id, start_date, end_date, start_time, end_time, unavailability_type, reason, is_all_day, active, created_by, created_at, updated_at) VALUES (:id, :teacher_id, :start_date, :end_date, :start_time, :end_time, :unavailability_type, :reason, :is_all_day, :active, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create unavailability: %w", err)
	}
	return nil
}

// List returns unavailability windows ordered by start date descending.
func (r *UnavailabilityRepository) List(ctx context.Context, filter models.UnavailabilityFilter) ([]models.TeacherUnavailability, int, error) {
	base := "FROM teacher_unavailabilities WHERE active = TRUE"
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("unavailability_type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("end_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("start_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_date DESC LIMIT %d OFFSET %d", unavailabilityColumns, base, size, offset)
	var entries []models.TeacherUnavailability
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list unavailabilities: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count unavailabilities: %w", err)
	}

	return entries, total, nil
}

// FindActiveForTeacher returns active windows for a teacher whose date range
// intersects [from, to], ordered by id for deterministic checks.
func (r *UnavailabilityRepository) FindActiveForTeacher(ctx context.Context, teacherID string, from, to time.Time) ([]models.TeacherUnavailability, error) {
	query := fmt.Sprintf("SELECT %s FROM teacher_unavailabilities WHERE teacher_id = $1 AND start_date <= $2 AND end_date >= $3 AND active = TRUE ORDER BY id ASC", unavailabilityColumns)
	var entries []models.TeacherUnavailability
	if err := r.db.SelectContext(ctx, &entries, query, teacherID, to, from); err != nil {
		return nil, fmt.Errorf("find teacher unavailabilities: %w", err)
	}
	return entries, nil
}

// Deactivate soft-deletes an unavailability window.
func (r *UnavailabilityRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE teacher_unavailabilities SET active = FALSE, updated_at = $1 WHERE id = $2 AND active = TRUE`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate unavailability: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
