package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/edt-api/internal/models"
	appErrors "github.com/noah-isme/edt-api/pkg/errors"
)

type candidateReader interface {
	FindCandidatesByRoom(ctx context.Context, roomID string, dayOfWeek int, from, to time.Time, excludeID string) ([]models.ScheduleDetail, error)
	FindCandidatesByTeacher(ctx context.Context, teacherID string, dayOfWeek int, from, to time.Time, excludeID string) ([]models.ScheduleDetail, error)
}

type unavailabilityReader interface {
	FindActiveForTeacher(ctx context.Context, teacherID string, from, to time.Time) ([]models.TeacherUnavailability, error)
}

// ConflictFinding is one detected problem with a proposed or stored booking.
// Blocking is set for double-bookings; unavailability findings carry only the
// window description.
type ConflictFinding struct {
	ConflictType string                  `json:"conflict_type"`
	Severity     string                  `json:"severity"`
	Message      string                  `json:"message"`
	Blocking     *models.BookingConflict `json:"blocking,omitempty"`
}

// ConflictChecker evaluates a booking against existing schedules and teacher
// unavailability windows. It reads a snapshot and never writes; the
// authoritative re-check happens inside the repository write transaction.
type ConflictChecker struct {
	schedules        candidateReader
	unavailabilities unavailabilityReader
}

// NewConflictChecker constructs ConflictChecker.
func NewConflictChecker(schedules candidateReader, unavailabilities unavailabilityReader) *ConflictChecker {
	return &ConflictChecker{schedules: schedules, unavailabilities: unavailabilities}
}

// Check returns every finding for the proposal: room double-bookings, teacher
// double-bookings, then teacher unavailability overlaps. An empty slice means
// the booking is clear as of the snapshot read.
func (c *ConflictChecker) Check(ctx context.Context, proposal models.ScheduleDetail, excludeID string) ([]ConflictFinding, error) {
	var findings []ConflictFinding

	roomCandidates, err := c.schedules.FindCandidatesByRoom(ctx, proposal.RoomID, proposal.Slot.DayOfWeek, proposal.StartDate, proposal.EndDate, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room candidates")
	}
	for _, candidate := range roomCandidates {
		if models.AssignmentsConflict(proposal, candidate) {
			findings = append(findings, doubleBookingFinding(models.ConflictRoomDoubleBooking, models.SeverityHigh, "room", candidate))
		}
	}

	teacherCandidates, err := c.schedules.FindCandidatesByTeacher(ctx, proposal.TeacherID, proposal.Slot.DayOfWeek, proposal.StartDate, proposal.EndDate, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher candidates")
	}
	for _, candidate := range teacherCandidates {
		if models.AssignmentsConflict(proposal, candidate) {
			findings = append(findings, doubleBookingFinding(models.ConflictTeacherDoubleBooking, models.SeverityCritical, "teacher", candidate))
		}
	}

	unavailable, err := c.UnavailabilityFindings(ctx, proposal, proposal.StartDate, proposal.EndDate)
	if err != nil {
		return nil, err
	}
	findings = append(findings, unavailable...)

	return findings, nil
}

// UnavailabilityFindings reports teacher unavailability windows that block at
// least one occurrence of the schedule's slot within [from, to].
func (c *ConflictChecker) UnavailabilityFindings(ctx context.Context, sched models.ScheduleDetail, from, to time.Time) ([]ConflictFinding, error) {
	if c.unavailabilities == nil {
		return nil, nil
	}
	windows, err := c.unavailabilities.FindActiveForTeacher(ctx, sched.TeacherID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher unavailabilities")
	}

	var findings []ConflictFinding
	for _, window := range windows {
		lo := laterDate(window.StartDate, laterDate(from, sched.StartDate))
		hi := earlierDate(window.EndDate, earlierDate(to, sched.EndDate))
		if !rangeContainsWeekday(lo, hi, sched.Slot.DayOfWeek) {
			continue
		}
		if !window.CoversSlot(sched.Slot.StartTime, sched.Slot.EndTime) {
			continue
		}
		findings = append(findings, ConflictFinding{
			ConflictType: models.ConflictTeacherUnavailable,
			Severity:     models.SeverityHigh,
			Message: fmt.Sprintf("teacher unavailable (%s) %s to %s",
				window.Type, window.StartDate.Format("2006-01-02"), window.EndDate.Format("2006-01-02")),
		})
	}
	return findings, nil
}

func doubleBookingFinding(conflictType, severity, resource string, blocking models.ScheduleDetail) ConflictFinding {
	return ConflictFinding{
		ConflictType: conflictType,
		Severity:     severity,
		Message:      fmt.Sprintf("%s already booked by %q on %s", resource, blocking.Title, blocking.Slot.Label()),
		Blocking: &models.BookingConflict{
			ScheduleID: blocking.ID,
			Title:      blocking.Title,
			TeacherID:  blocking.TeacherID,
			RoomID:     blocking.RoomID,
			DayOfWeek:  blocking.Slot.DayOfWeek,
			StartTime:  blocking.Slot.StartTime,
			EndTime:    blocking.Slot.EndTime,
			Resource:   resource,
		},
	}
}

// rangeContainsWeekday reports whether [from, to] includes at least one date
// falling on the Monday-first weekday index.
func rangeContainsWeekday(from, to time.Time, weekday int) bool {
	if to.Before(from) {
		return false
	}
	if to.Sub(from) >= 6*24*time.Hour {
		return true
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if models.WeekdayIndex(d) == weekday {
			return true
		}
	}
	return false
}

func laterDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
