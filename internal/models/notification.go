package models

import "time"

// Notification event types emitted by the scheduling core.
const (
	EventScheduleCancelled = "SCHEDULE_CANCELLED"
	EventScheduleUpdated   = "SCHEDULE_UPDATED"
	EventConflictDetected  = "CONFLICT_DETECTED"
	EventMakeupRequested   = "MAKEUP_REQUESTED"
	EventMakeupDecided     = "MAKEUP_DECIDED"
)

// Notification is a stored event for a recipient. Delivery (email/SMS/push)
// is owned by an external dispatcher; the core only records the event.
type Notification struct {
	ID          string     `db:"id" json:"id"`
	RecipientID string     `db:"recipient_id" json:"recipient_id"`
	EventType   string     `db:"event_type" json:"event_type"`
	Title       string     `db:"title" json:"title"`
	Message     string     `db:"message" json:"message"`
	ScheduleID  *string    `db:"schedule_id" json:"schedule_id,omitempty"`
	MakeupID    *string    `db:"makeup_id" json:"makeup_id,omitempty"`
	IsRead      bool       `db:"is_read" json:"is_read"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
