package service

import (
	"context"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type catalogListReader interface {
	catalogReader
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
}

// CatalogService serves the reference entities schedules point at. The
// catalogue itself is maintained by the surrounding platform; this service
// only reads.
type CatalogService struct {
	catalog catalogListReader
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(catalog catalogListReader) *CatalogService {
	return &CatalogService{catalog: catalog}
}

// ListTeachers returns all active teachers.
func (s *CatalogService) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	teachers, err := s.catalog.ListTeachers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, nil
}

// ListRooms returns all active rooms.
func (s *CatalogService) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.catalog.ListRooms(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, nil
}
