package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// weeklyCacheKey builds the cache key for one weekly timetable projection.
func weeklyCacheKey(weekStart time.Time, teacherID, roomID string) string {
	return fmt.Sprintf("edt:weekly:%s:t=%s:r=%s", weekStart.Format("2006-01-02"), teacherID, roomID)
}

const conflictListCacheKey = "edt:conflicts:unresolved"

// CacheService orchestrates cache reads and invalidation around the weekly
// timetable and conflict list views. Failures degrade to database reads.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, logger *zap.Logger, enabled bool) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true on a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	if err := s.repo.Get(ctx, key, dest); err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
		return false
	}
	s.metrics.RecordCacheOperation(true)
	return true
}

// Set stores the value in cache. Errors are logged, not propagated.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateSchedules drops every cached view derived from schedule rows.
// Called after any write that changes what a timetable looks like.
func (s *CacheService) InvalidateSchedules(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, "edt:weekly:*"); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Error(err))
	}
}

// InvalidateConflicts drops the cached conflict list.
func (s *CacheService) InvalidateConflicts(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, conflictListCacheKey); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Error(err))
	}
}
