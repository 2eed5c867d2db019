package models

import "time"

// Teacher unavailability reason categories.
const (
	UnavailabilitySickLeave  = "SICK_LEAVE"
	UnavailabilityVacation   = "VACATION"
	UnavailabilityConference = "CONFERENCE"
	UnavailabilityMeeting    = "MEETING"
	UnavailabilityPersonal   = "PERSONAL"
	UnavailabilityOther      = "OTHER"
)

// TeacherUnavailability marks a teacher unavailable over a date range,
// optionally restricted to a sub-day time window. When IsAllDay is false both
// StartTime and EndTime are required and must satisfy start < end.
type TeacherUnavailability struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	StartTime *string   `db:"start_time" json:"start_time,omitempty"`
	EndTime   *string   `db:"end_time" json:"end_time,omitempty"`
	Type      string    `db:"unavailability_type" json:"unavailability_type"`
	Reason    string    `db:"reason" json:"reason"`
	IsAllDay  bool      `db:"is_all_day" json:"is_all_day"`
	Active    bool      `db:"active" json:"active"`
	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CoversSlot reports whether the unavailability blocks the given clock
// interval on a date already known to fall inside the unavailability's date
// range. All-day entries block everything; partial entries block only
// overlapping time windows.
func (u TeacherUnavailability) CoversSlot(startTime, endTime string) bool {
	if u.IsAllDay || u.StartTime == nil || u.EndTime == nil {
		return true
	}
	return !(endTime <= *u.StartTime || startTime >= *u.EndTime)
}

// UnavailabilityFilter describes query params for listing unavailabilities.
type UnavailabilityFilter struct {
	TeacherID string
	Type      string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}
