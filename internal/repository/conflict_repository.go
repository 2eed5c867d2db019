package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/edt-api/internal/models"
)

// uniqueViolation is the Postgres error code raised when the partial unique
// index on open (schedule1_id, conflict_type) pairs rejects an insert.
const uniqueViolation = "23505"

const conflictColumns = "id, schedule1_id, schedule2_id, conflict_type, severity, description, is_resolved, resolution_notes, resolved_by, resolved_at, created_at, updated_at"

// severityRank orders severities for listing: CRITICAL first, LOW last.
const severityRank = `CASE severity WHEN 'CRITICAL' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END`

// ConflictRepository persists the double-booking ledger.
type ConflictRepository struct {
	db *sqlx.DB
}

// NewConflictRepository creates a new conflict repository.
func NewConflictRepository(db *sqlx.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// RecordIfAbsent inserts an unresolved conflict unless one is already open
// for the same (schedule1, conflict_type) pair. Returns true when a new
// record was created, false when the detection was a duplicate. The NOT
// EXISTS guard handles the common case; the partial unique index
// schedule_conflicts_open_uniq closes the window between two concurrent
// recorders, and losing that race also reports a duplicate.
func (r *ConflictRepository) RecordIfAbsent(ctx context.Context, conflict *models.ScheduleConflict) (bool, error) {
	if conflict.ID == "" {
		conflict.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conflict.CreatedAt = now
	conflict.UpdatedAt = now

	const query = `INSERT INTO schedule_conflicts (id, schedule1_id, schedule2_id, conflict_type, severity, description, is_resolved, resolution_notes, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, FALSE, '', $7, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM schedule_conflicts WHERE schedule1_id = $2 AND conflict_type = $4 AND is_resolved = FALSE
		)`
	res, err := r.db.ExecContext(ctx, query, conflict.ID, conflict.Schedule1ID, conflict.Schedule2ID, conflict.ConflictType, conflict.Severity, conflict.Description, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("record conflict: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record conflict result: %w", err)
	}
	return affected > 0, nil
}

// Resolve closes a conflict with attribution. Resolving an already-resolved
// conflict is a no-op that preserves the original resolution metadata.
func (r *ConflictRepository) Resolve(ctx context.Context, id, resolvedBy, notes string) error {
	const query = `UPDATE schedule_conflicts SET is_resolved = TRUE, resolution_notes = $1, resolved_by = $2, resolved_at = $3, updated_at = $3 WHERE id = $4 AND is_resolved = FALSE`
	if _, err := r.db.ExecContext(ctx, query, notes, resolvedBy, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	return nil
}

// FindByID loads a conflict by id.
func (r *ConflictRepository) FindByID(ctx context.Context, id string) (*models.ScheduleConflict, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_conflicts WHERE id = $1", conflictColumns)
	var conflict models.ScheduleConflict
	if err := r.db.GetContext(ctx, &conflict, query, id); err != nil {
		return nil, err
	}
	return &conflict, nil
}

// ListUnresolved returns open conflicts ordered by severity descending then
// recency descending.
func (r *ConflictRepository) ListUnresolved(ctx context.Context, filter models.ConflictFilter) ([]models.ScheduleConflict, int, error) {
	base := "FROM schedule_conflicts WHERE is_resolved = FALSE"
	var conditions []string
	var args []interface{}

	if filter.ConflictType != "" {
		conditions = append(conditions, fmt.Sprintf("conflict_type = $%d", len(args)+1))
		args = append(args, filter.ConflictType)
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)+1))
		args = append(args, filter.Severity)
	}
	if filter.ScheduleID != "" {
		conditions = append(conditions, fmt.Sprintf("(schedule1_id = $%d OR schedule2_id = $%d)", len(args)+1, len(args)+1))
		args = append(args, filter.ScheduleID)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s DESC, created_at DESC LIMIT %d OFFSET %d", conflictColumns, base, severityRank, size, offset)
	var conflicts []models.ScheduleConflict
	if err := r.db.SelectContext(ctx, &conflicts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list unresolved conflicts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count unresolved conflicts: %w", err)
	}

	return conflicts, total, nil
}

// CountUnresolved returns the number of open conflicts.
func (r *ConflictRepository) CountUnresolved(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM schedule_conflicts WHERE is_resolved = FALSE`); err != nil {
		return 0, fmt.Errorf("count unresolved conflicts: %w", err)
	}
	return total, nil
}
