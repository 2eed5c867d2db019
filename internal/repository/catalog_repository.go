package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edt-api/internal/models"
)

// CatalogRepository resolves the reference entities schedules point at:
// subjects, teachers and rooms.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// FindSubject loads an active subject by id.
func (r *CatalogRepository) FindSubject(ctx context.Context, id string) (*models.Subject, error) {
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, `SELECT id, code, name, active, created_at, updated_at FROM subjects WHERE id = $1 AND active = TRUE`, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindTeacher loads an active teacher by id.
func (r *CatalogRepository) FindTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, `SELECT id, full_name, email, active, created_at, updated_at FROM teachers WHERE id = $1 AND active = TRUE`, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindRoom loads an active room by id.
func (r *CatalogRepository) FindRoom(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := r.db.GetContext(ctx, &room, `SELECT id, name, capacity, active, created_at, updated_at FROM rooms WHERE id = $1 AND active = TRUE`, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListTeachers returns all active teachers ordered by name.
func (r *CatalogRepository) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, `SELECT id, full_name, email, active, created_at, updated_at FROM teachers WHERE active = TRUE ORDER BY full_name ASC`); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// ListRooms returns all active rooms ordered by name.
func (r *CatalogRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, `SELECT id, name, capacity, active, created_at, updated_at FROM rooms WHERE active = TRUE ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
