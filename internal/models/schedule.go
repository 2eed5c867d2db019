package models

import "time"

// Schedule is a date-ranged weekly recurring booking of a subject, teacher,
// room and time slot. The session recurs on the slot's weekday for every week
// whose date falls within [StartDate, EndDate].
type Schedule struct {
	ID                 string    `db:"id" json:"id"`
	Title              string    `db:"title" json:"title"`
	SubjectID          string    `db:"subject_id" json:"subject_id"`
	TeacherID          string    `db:"teacher_id" json:"teacher_id"`
	RoomID             string    `db:"room_id" json:"room_id"`
	TimeSlotID         string    `db:"time_slot_id" json:"time_slot_id"`
	StartDate          time.Time `db:"start_date" json:"start_date"`
	EndDate            time.Time `db:"end_date" json:"end_date"`
	StudentCount       int       `db:"student_count" json:"student_count"`
	Notes              string    `db:"notes" json:"notes"`
	IsCancelled        bool      `db:"is_cancelled" json:"is_cancelled"`
	CancellationReason string    `db:"cancellation_reason" json:"cancellation_reason"`
	Active             bool      `db:"active" json:"active"`
	CreatedBy          *string   `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy          *string   `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleDetail joins the owning time slot onto a schedule row. Repositories
// alias joined columns as "slot.*" so sqlx hydrates the embedded struct.
type ScheduleDetail struct {
	Schedule
	Slot TimeSlot `db:"slot" json:"time_slot"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	SubjectID   string
	TeacherID   string
	RoomID      string
	DayOfWeek   *int
	IsCancelled *bool
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// BookingConflict identifies the existing booking that blocks a write.
type BookingConflict struct {
	ScheduleID string `json:"schedule_id"`
	Title      string `json:"title"`
	TeacherID  string `json:"teacher_id"`
	RoomID     string `json:"room_id"`
	DayOfWeek  int    `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Resource   string `json:"resource"`
}

// BookingConflictError is returned when a proposed booking collides with an
// existing one on a shared room or teacher.
type BookingConflictError struct {
	Resource string          `json:"resource"`
	Message  string          `json:"message"`
	Blocking BookingConflict `json:"blocking"`
}

// Error implements the error interface for conflict errors.
func (e *BookingConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// ScheduleStats summarises the current booking state for dashboards.
type ScheduleStats struct {
	TotalSchedules      int `db:"total_schedules" json:"total_schedules"`
	ActiveSchedules     int `db:"active_schedules" json:"active_schedules"`
	CancelledSchedules  int `db:"cancelled_schedules" json:"cancelled_schedules"`
	PendingMakeups      int `db:"-" json:"pending_makeups"`
	UnresolvedConflicts int `db:"-" json:"unresolved_conflicts"`
}

// WeeklyScheduleDay groups one calendar day's sessions in the weekly view.
type WeeklyScheduleDay struct {
	Date      string           `json:"date"`
	DayName   string           `json:"day_name"`
	Schedules []ScheduleDetail `json:"schedules"`
}

// WeeklySchedule is the seven-day projection returned by the weekly endpoint.
type WeeklySchedule struct {
	WeekStart string              `json:"week_start"`
	WeekEnd   string              `json:"week_end"`
	Days      []WeeklyScheduleDay `json:"days"`
}
