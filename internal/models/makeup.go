package models

import "time"

// Makeup session lifecycle states.
const (
	MakeupPending   = "PENDING"
	MakeupApproved  = "APPROVED"
	MakeupRejected  = "REJECTED"
	MakeupCompleted = "COMPLETED"
)

// MakeupSession proposes a replacement booking for a cancelled schedule. The
// proposed slot is validated only at approval time; approval materialises a
// one-day schedule so later conflict scans see the booking.
type MakeupSession struct {
	ID                 string     `db:"id" json:"id"`
	OriginalScheduleID string     `db:"original_schedule_id" json:"original_schedule_id"`
	ProposedDate       time.Time  `db:"proposed_date" json:"proposed_date"`
	ProposedTimeSlotID string     `db:"proposed_time_slot_id" json:"proposed_time_slot_id"`
	ProposedRoomID     string     `db:"proposed_room_id" json:"proposed_room_id"`
	Status             string     `db:"status" json:"status"`
	Reason             string     `db:"reason" json:"reason"`
	BookingScheduleID  *string    `db:"booking_schedule_id" json:"booking_schedule_id,omitempty"`
	ApprovedBy         *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovalDate       *time.Time `db:"approval_date" json:"approval_date,omitempty"`
	Active             bool       `db:"active" json:"active"`
	CreatedBy          *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// MakeupFilter describes query params for listing makeup sessions.
type MakeupFilter struct {
	Status             string
	OriginalScheduleID string
	TeacherID          string
	Page               int
	PageSize           int
}
