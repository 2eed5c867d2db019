package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edt-api/internal/models"
)

const generationColumns = "id, status, started_at, finished_at, parameters, results, error_message, created_by, created_at, updated_at"

// GenerationRepository persists timetable generation audit records.
type GenerationRepository struct {
	db *sqlx.DB
}

// NewGenerationRepository creates a new generation repository.
func NewGenerationRepository(db *sqlx.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// Create stores a new RUNNING generation attempt.
func (r *GenerationRepository) Create(ctx context.Context, gen *models.TimetableGeneration) error {
	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	gen.Status = models.GenerationRunning
	gen.StartedAt = now
	gen.CreatedAt = now
	gen.UpdatedAt = now
	if len(gen.Parameters) == 0 {
		gen.Parameters = json.RawMessage("{}")
	}

	const query = `INSERT INTO timetable_generations (id, status, started_at, parameters, results, error_message, created_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	if _, err := r.db.ExecContext(ctx, query, gen.ID, gen.Status, gen.StartedAt, []byte(gen.Parameters), []byte("{}"), "", gen.CreatedBy, now); err != nil {
		return fmt.Errorf("create generation record: %w", err)
	}
	return nil
}

// Finalize transitions a RUNNING attempt to a terminal status with results.
func (r *GenerationRepository) Finalize(ctx context.Context, id, status string, results json.RawMessage, errorMessage string) error {
	if len(results) == 0 {
		results = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE timetable_generations SET status = $1, finished_at = $2, results = $3, error_message = $4, updated_at = $2 WHERE id = $5 AND status = 'RUNNING'`,
		status, now, []byte(results), errorMessage, id)
	if err != nil {
		return fmt.Errorf("finalize generation record: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID loads a generation record.
func (r *GenerationRepository) FindByID(ctx context.Context, id string) (*models.TimetableGeneration, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_generations WHERE id = $1", generationColumns)
	var gen models.TimetableGeneration
	if err := r.db.GetContext(ctx, &gen, query, id); err != nil {
		return nil, err
	}
	return &gen, nil
}

// List returns generation attempts, most recent first.
func (r *GenerationRepository) List(ctx context.Context, page, pageSize int) ([]models.TimetableGeneration, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf("SELECT %s FROM timetable_generations ORDER BY started_at DESC LIMIT %d OFFSET %d", generationColumns, pageSize, offset)
	var generations []models.TimetableGeneration
	if err := r.db.SelectContext(ctx, &generations, query); err != nil {
		return nil, 0, fmt.Errorf("list generation records: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM timetable_generations`); err != nil {
		return nil, 0, fmt.Errorf("count generation records: %w", err)
	}
	return generations, total, nil
}
