package models

import "time"

// Conflict types recorded in the ledger.
const (
	ConflictRoomDoubleBooking    = "ROOM_DOUBLE_BOOKING"
	ConflictTeacherDoubleBooking = "TEACHER_DOUBLE_BOOKING"
	ConflictStudentGroup         = "STUDENT_GROUP_CONFLICT"
	ConflictCapacityExceeded     = "CAPACITY_EXCEEDED"
	ConflictTeacherUnavailable   = "TEACHER_UNAVAILABLE"
)

// Conflict severities, lowest to highest.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// ScheduleConflict is a ledger record of a detected double-booking or external
// constraint violation. Schedule2ID is null when the conflict is against an
// external constraint such as a teacher unavailability. At most one unresolved
// record may exist per (schedule1, conflict_type) pair.
type ScheduleConflict struct {
	ID              string     `db:"id" json:"id"`
	Schedule1ID     string     `db:"schedule1_id" json:"schedule1_id"`
	Schedule2ID     *string    `db:"schedule2_id" json:"schedule2_id,omitempty"`
	ConflictType    string     `db:"conflict_type" json:"conflict_type"`
	Severity        string     `db:"severity" json:"severity"`
	Description     string     `db:"description" json:"description"`
	IsResolved      bool       `db:"is_resolved" json:"is_resolved"`
	ResolutionNotes string     `db:"resolution_notes" json:"resolution_notes"`
	ResolvedBy      *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// ConflictFilter describes query params for listing conflicts.
type ConflictFilter struct {
	ConflictType string
	Severity     string
	ScheduleID   string
	Page         int
	PageSize     int
}
