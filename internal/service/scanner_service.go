package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

// ErrScanInProgress reports that a reconciliation sweep is already running.
// Callers decide whether to retry, skip, or surface the collision.
var ErrScanInProgress = appErrors.New("SCAN_IN_PROGRESS", http.StatusConflict, "a conflict scan is already running")

type scanScheduleReader interface {
	ListActiveInWindow(ctx context.Context, from, to time.Time) ([]models.ScheduleDetail, error)
}

type conflictRecorder interface {
	Record(ctx context.Context, conflict *models.ScheduleConflict) (bool, error)
}

// ScanResult summarises one reconciliation pass.
type ScanResult struct {
	Scanned  int           `json:"schedules_scanned"`
	Detected int           `json:"conflicts_detected"`
	Duration time.Duration `json:"-"`
	RanAt    time.Time     `json:"ran_at"`
}

// ScannerService periodically sweeps the forward booking window and records
// any double-bookings or unavailability overlaps that slipped past write-time
// validation (direct data imports, unavailability added after booking). It
// only appends to the conflict ledger and never mutates schedules.
type ScannerService struct {
	schedules scanScheduleReader
	conflicts conflictRecorder
	checker   *ConflictChecker
	notifier  Notifier
	metrics   *MetricsService
	logger    *zap.Logger

	interval    time.Duration
	horizonDays int
	running     int32
}

// NewScannerService constructs ScannerService.
func NewScannerService(schedules scanScheduleReader, conflicts conflictRecorder, checker *ConflictChecker, notifier Notifier, metrics *MetricsService, logger *zap.Logger, interval time.Duration, horizonDays int) *ScannerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &ScannerService{
		schedules:   schedules,
		conflicts:   conflicts,
		checker:     checker,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
		horizonDays: horizonDays,
	}
}

// Run scans immediately, then on every tick until the context is cancelled.
func (s *ScannerService) Run(ctx context.Context) {
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *ScannerService) tick(ctx context.Context) {
	_, err := s.ScanOnce(ctx)
	switch {
	case errors.Is(err, ErrScanInProgress):
		s.logger.Debug("conflict scan already in progress, skipping tick")
	case err != nil:
		s.logger.Error("conflict scan failed", zap.Error(err))
	}
}

// ScanOnce runs a single reconciliation pass over the forward window and
// returns what it found. Overlapping invocations are collapsed; the loser
// gets ErrScanInProgress instead of a result that looks like a clean sweep.
func (s *ScannerService) ScanOnce(ctx context.Context) (*ScanResult, error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil, ErrScanInProgress
	}
	defer atomic.StoreInt32(&s.running, 0)

	start := time.Now()
	now := start.UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, s.horizonDays)

	schedules, err := s.schedules.ListActiveInWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load scan window: %w", err)
	}

	detected := 0
	detected += s.sweepPairs(ctx, schedules, func(sched models.ScheduleDetail) string { return sched.RoomID },
		models.ConflictRoomDoubleBooking, models.SeverityHigh, "room")
	detected += s.sweepPairs(ctx, schedules, func(sched models.ScheduleDetail) string { return sched.TeacherID },
		models.ConflictTeacherDoubleBooking, models.SeverityCritical, "teacher")
	detected += s.sweepUnavailabilities(ctx, schedules, from, to)

	duration := time.Since(start)
	s.metrics.ObserveScan(detected, duration)
	s.logger.Info("conflict scan complete",
		zap.Int("schedules", len(schedules)),
		zap.Int("detected", detected),
		zap.Duration("duration", duration))

	return &ScanResult{Scanned: len(schedules), Detected: detected, Duration: duration, RanAt: now}, nil
}

// sweepPairs groups schedules by a shared resource and weekday, then applies
// the pairwise conflict predicate. The later schedule of a clashing pair is
// recorded as schedule1 so repeated scans converge on one open ledger entry.
func (s *ScannerService) sweepPairs(ctx context.Context, schedules []models.ScheduleDetail, keyOf func(models.ScheduleDetail) string, conflictType, severity, resource string) int {
	groups := make(map[string][]models.ScheduleDetail)
	for _, sched := range schedules {
		key := fmt.Sprintf("%s|%d", keyOf(sched), sched.Slot.DayOfWeek)
		groups[key] = append(groups[key], sched)
	}

	detected := 0
	for _, group := range groups {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if !models.AssignmentsConflict(group[i], group[j]) {
					continue
				}
				first, second := group[i], group[j]
				conflict := &models.ScheduleConflict{
					Schedule1ID:  second.ID,
					Schedule2ID:  &first.ID,
					ConflictType: conflictType,
					Severity:     severity,
					Description:  fmt.Sprintf("%s clash between %q and %q on %s", resource, second.Title, first.Title, second.Slot.Label()),
				}
				created, err := s.conflicts.Record(ctx, conflict)
				if err != nil {
					s.logger.Error("failed to record scan conflict", zap.Error(err))
					continue
				}
				if created {
					detected++
					s.notifyConflict(second, conflict)
				}
			}
		}
	}
	return detected
}

func (s *ScannerService) sweepUnavailabilities(ctx context.Context, schedules []models.ScheduleDetail, from, to time.Time) int {
	if s.checker == nil {
		return 0
	}
	detected := 0
	for _, sched := range schedules {
		findings, err := s.checker.UnavailabilityFindings(ctx, sched, from, to)
		if err != nil {
			s.logger.Error("failed to check unavailabilities", zap.String("schedule_id", sched.ID), zap.Error(err))
			continue
		}
		for _, finding := range findings {
			conflict := &models.ScheduleConflict{
				Schedule1ID:  sched.ID,
				ConflictType: finding.ConflictType,
				Severity:     finding.Severity,
				Description:  fmt.Sprintf("%q on %s: %s", sched.Title, sched.Slot.Label(), finding.Message),
			}
			created, err := s.conflicts.Record(ctx, conflict)
			if err != nil {
				s.logger.Error("failed to record scan conflict", zap.Error(err))
				continue
			}
			if created {
				detected++
				s.notifyConflict(sched, conflict)
			}
		}
	}
	return detected
}

func (s *ScannerService) notifyConflict(sched models.ScheduleDetail, conflict *models.ScheduleConflict) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(models.Notification{
		RecipientID: sched.TeacherID,
		EventType:   models.EventConflictDetected,
		Title:       "Scheduling conflict detected",
		Message:     conflict.Description,
		ScheduleID:  &sched.ID,
	})
}
