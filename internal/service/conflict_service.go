package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type conflictRepo interface {
	RecordIfAbsent(ctx context.Context, conflict *models.ScheduleConflict) (bool, error)
	Resolve(ctx context.Context, id, resolvedBy, notes string) error
	FindByID(ctx context.Context, id string) (*models.ScheduleConflict, error)
	ListUnresolved(ctx context.Context, filter models.ConflictFilter) ([]models.ScheduleConflict, int, error)
	CountUnresolved(ctx context.Context) (int, error)
}

// ResolveConflictRequest closes a conflict with an explanation.
type ResolveConflictRequest struct {
	Notes string `json:"notes" validate:"required"`
}

// conflictListPage is the cached shape of the unfiltered first page.
type conflictListPage struct {
	Conflicts []models.ScheduleConflict `json:"conflicts"`
	Total     int                       `json:"total"`
}

// ConflictService manages the double-booking ledger.
type ConflictService struct {
	conflicts   conflictRepo
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	conflictTTL time.Duration
}

// NewConflictService constructs ConflictService.
func NewConflictService(conflicts conflictRepo, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, conflictTTL time.Duration) *ConflictService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if conflictTTL <= 0 {
		conflictTTL = time.Minute
	}
	return &ConflictService{
		conflicts:   conflicts,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		conflictTTL: conflictTTL,
	}
}

// Record writes an unresolved conflict unless one is already open for the
// same (schedule, type) pair. Returns true when a new record was created.
func (s *ConflictService) Record(ctx context.Context, conflict *models.ScheduleConflict) (bool, error) {
	created, err := s.conflicts.RecordIfAbsent(ctx, conflict)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record conflict")
	}
	if created {
		s.cache.InvalidateConflicts(ctx)
		s.logger.Warn("conflict recorded",
			zap.String("conflict_id", conflict.ID),
			zap.String("type", conflict.ConflictType),
			zap.String("severity", conflict.Severity),
			zap.String("schedule_id", conflict.Schedule1ID))
	}
	return created, nil
}

// Resolve closes a conflict with attribution. Resolving twice is a no-op that
// keeps the first resolution's metadata.
func (s *ConflictService) Resolve(ctx context.Context, id string, req ResolveConflictRequest, actorID string) (*models.ScheduleConflict, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}
	if _, err := s.conflicts.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("conflict %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict")
	}
	if err := s.conflicts.Resolve(ctx, id, actorID, req.Notes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve conflict")
	}
	s.cache.InvalidateConflicts(ctx)

	resolved, err := s.conflicts.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload conflict")
	}
	return resolved, nil
}

// ListUnresolved returns open conflicts ordered by severity then recency. The
// unfiltered first page is cached briefly because dashboards poll it.
func (s *ConflictService) ListUnresolved(ctx context.Context, filter models.ConflictFilter) ([]models.ScheduleConflict, int, error) {
	cacheable := filter.ConflictType == "" && filter.Severity == "" && filter.ScheduleID == "" && filter.Page <= 1
	if cacheable {
		var cached conflictListPage
		if s.cache.Get(ctx, conflictListCacheKey, &cached) {
			return cached.Conflicts, cached.Total, nil
		}
	}

	conflicts, total, err := s.conflicts.ListUnresolved(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conflicts")
	}
	s.metrics.SetOpenConflicts(total)

	if cacheable {
		s.cache.Set(ctx, conflictListCacheKey, conflictListPage{Conflicts: conflicts, Total: total}, s.conflictTTL)
	}
	return conflicts, total, nil
}

// CountUnresolved returns the number of open conflicts.
func (s *ConflictService) CountUnresolved(ctx context.Context) (int, error) {
	total, err := s.conflicts.CountUnresolved(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count conflicts")
	}
	s.metrics.SetOpenConflicts(total)
	return total, nil
}
