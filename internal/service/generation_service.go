package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type generationRepo interface {
	Create(ctx context.Context, gen *models.TimetableGeneration) error
	Finalize(ctx context.Context, id, status string, results json.RawMessage, errorMessage string) error
	FindByID(ctx context.Context, id string) (*models.TimetableGeneration, error)
	List(ctx context.Context, page, pageSize int) ([]models.TimetableGeneration, int, error)
}

type timetableScanner interface {
	ScanOnce(ctx context.Context) (*ScanResult, error)
}

// GenerationService tracks timetable validation attempts as audit records.
// Each attempt runs a full conflict sweep in the background and finalises
// with the sweep's findings.
type GenerationService struct {
	generations generationRepo
	scanner     timetableScanner
	logger      *zap.Logger
	timeout     time.Duration
	retryDelay  time.Duration
}

// scanAttempts bounds how often a validation run waits out a sweep that is
// already in flight before giving up.
const scanAttempts = 3

// NewGenerationService constructs GenerationService.
func NewGenerationService(generations generationRepo, scanner timetableScanner, logger *zap.Logger) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		generations: generations,
		scanner:     scanner,
		logger:      logger,
		timeout:     5 * time.Minute,
		retryDelay:  10 * time.Second,
	}
}

// Start records a RUNNING attempt and kicks off the validation sweep in the
// background. The returned record reflects the initial state; poll Get for
// the outcome.
func (s *GenerationService) Start(ctx context.Context, parameters json.RawMessage, actorID string) (*models.TimetableGeneration, error) {
	if len(parameters) > 0 && !json.Valid(parameters) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "parameters must be valid JSON")
	}
	gen := &models.TimetableGeneration{
		Parameters: parameters,
		CreatedBy:  optionalID(actorID),
	}
	if err := s.generations.Create(ctx, gen); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start generation")
	}

	go s.runValidation(gen.ID)
	return gen, nil
}

func (s *GenerationService) runValidation(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.sweep(ctx)
	if err != nil {
		if ferr := s.generations.Finalize(ctx, id, models.GenerationFailed, nil, err.Error()); ferr != nil {
			s.logger.Error("failed to finalise generation", zap.String("generation_id", id), zap.Error(ferr))
		}
		return
	}

	results, err := json.Marshal(result)
	if err != nil {
		results = json.RawMessage("{}")
	}
	if err := s.generations.Finalize(ctx, id, models.GenerationCompleted, results, ""); err != nil {
		s.logger.Error("failed to finalise generation", zap.String("generation_id", id), zap.Error(err))
		return
	}
	s.logger.Info("generation completed",
		zap.String("generation_id", id),
		zap.Int("conflicts_detected", result.Detected))
}

// sweep runs the conflict scan, waiting out a sweep that is already in
// flight. It never reports a skipped sweep as a clean result; exhausting the
// retries surfaces ErrScanInProgress so the attempt finalises FAILED.
func (s *GenerationService) sweep(ctx context.Context) (*ScanResult, error) {
	for attempt := 1; ; attempt++ {
		result, err := s.scanner.ScanOnce(ctx)
		if !errors.Is(err, ErrScanInProgress) {
			return result, err
		}
		if attempt >= scanAttempts {
			return nil, err
		}
		s.logger.Debug("scan busy, waiting to retry", zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

// Cancel marks a RUNNING attempt CANCELLED. The background sweep may still
// finish but its finalisation becomes a no-op.
func (s *GenerationService) Cancel(ctx context.Context, id string) (*models.TimetableGeneration, error) {
	if err := s.generations.Finalize(ctx, id, models.GenerationCancelled, nil, "cancelled by operator"); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "generation is not RUNNING")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel generation")
	}
	return s.Get(ctx, id)
}

// Get loads a generation attempt.
func (s *GenerationService) Get(ctx context.Context, id string) (*models.TimetableGeneration, error) {
	gen, err := s.generations.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("generation %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation")
	}
	return gen, nil
}

// List returns generation attempts, most recent first.
func (s *GenerationService) List(ctx context.Context, page, pageSize int) ([]models.TimetableGeneration, int, error) {
	generations, total, err := s.generations.List(ctx, page, pageSize)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list generations")
	}
	return generations, total, nil
}
