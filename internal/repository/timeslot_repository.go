package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edt-api/internal/models"
)

const timeSlotColumns = "id, day_of_week, start_time, end_time, duration_minutes, name, active, created_at, updated_at"

// TimeSlotRepository provides persistence for canonical weekly time slots.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository creates a new time slot repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// GetOrCreate resolves the slot for a (day, start, end) triple, inserting it
// when absent. Identity is structural, so concurrent callers racing on the
// same triple converge on a single row via the unique constraint.
func (r *TimeSlotRepository) GetOrCreate(ctx context.Context, slot *models.TimeSlot) error {
	existing, err := r.findByTriple(ctx, slot.DayOfWeek, slot.StartTime, slot.EndTime)
	if err == nil {
		*slot = *existing
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("lookup time slot: %w", err)
	}

	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.Active = true
	slot.CreatedAt = now
	slot.UpdatedAt = now

	const insert = `INSERT INTO time_slots (id, day_of_week, start_time, end_time, duration_minutes, name, active, created_at, updated_at) VALUES (:id, :day_of_week, :start_time, :end_time, :duration_minutes, :name, :active, :created_at, :updated_at) ON CONFLICT (day_of_week, start_time, end_time) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, insert, slot); err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}

	// A concurrent insert may have won the ON CONFLICT race; re-read either way.
	winner, err := r.findByTriple(ctx, slot.DayOfWeek, slot.StartTime, slot.EndTime)
	if err != nil {
		return fmt.Errorf("reload time slot: %w", err)
	}
	*slot = *winner
	return nil
}

func (r *TimeSlotRepository) findByTriple(ctx context.Context, day int, start, end string) (*models.TimeSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM time_slots WHERE day_of_week = $1 AND start_time = $2 AND end_time = $3", timeSlotColumns)
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, day, start, end); err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindByID loads a time slot by id.
func (r *TimeSlotRepository) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM time_slots WHERE id = $1", timeSlotColumns)
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// List returns active slots ordered by weekday then start time.
func (r *TimeSlotRepository) List(ctx context.Context, filter models.TimeSlotFilter) ([]models.TimeSlot, error) {
	query := fmt.Sprintf("SELECT %s FROM time_slots WHERE active = TRUE", timeSlotColumns)
	var args []interface{}
	if filter.DayOfWeek != nil {
		query += " AND day_of_week = $1"
		args = append(args, *filter.DayOfWeek)
	}
	query += " ORDER BY day_of_week ASC, start_time ASC"

	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

// Rename updates the display name; the interval itself is immutable.
func (r *TimeSlotRepository) Rename(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE time_slots SET name = $1, updated_at = $2 WHERE id = $3`, name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("rename time slot: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
