package models

import (
	"fmt"
	"time"
)

// Days of the week, Monday-first to match timetable ordering.
const (
	Monday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DayName returns the English name for a Monday-first weekday index.
func DayName(day int) string {
	if day < 0 || day > 6 {
		return "Unknown"
	}
	return dayNames[day]
}

// WeekdayIndex converts a time.Time weekday to the Monday-first index used
// throughout the timetable schema.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// MinuteOfDay parses a zero-padded "HH:MM" clock string into minutes from
// midnight. Returns -1 for malformed input.
func MinuteOfDay(clock string) int {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return -1
	}
	return parsed.Hour()*60 + parsed.Minute()
}

// ValidClock reports whether the string is a well-formed "HH:MM" value.
func ValidClock(clock string) bool {
	return MinuteOfDay(clock) >= 0
}

// TimeSlot is a recurring weekly interval identified by weekday plus start and
// end clock time. Identity is structural: (day_of_week, start_time, end_time)
// is unique and creation is idempotent on that triple.
type TimeSlot struct {
	ID              string    `db:"id" json:"id"`
	DayOfWeek       int       `db:"day_of_week" json:"day_of_week"`
	StartTime       string    `db:"start_time" json:"start_time"`
	EndTime         string    `db:"end_time" json:"end_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Name            string    `db:"name" json:"name"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Label renders the slot as "Monday 09:00-10:00" for titles and messages.
func (s TimeSlot) Label() string {
	return fmt.Sprintf("%s %s-%s", DayName(s.DayOfWeek), s.StartTime, s.EndTime)
}

// TimeSlotFilter describes query params for listing time slots.
type TimeSlotFilter struct {
	DayOfWeek *int
}
