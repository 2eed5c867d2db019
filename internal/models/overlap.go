package models

// TimesOverlap reports whether two clock intervals share at least one instant.
// Intervals are half-open: back-to-back sessions (endA == startB) do not
// overlap. Zero-padded "HH:MM" strings compare lexicographically in
// chronological order.
func TimesOverlap(startA, endA, startB, endB string) bool {
	return !(endA <= startB || startA >= endB)
}

// AssignmentsConflict reports whether two date-ranged weekly bookings collide:
// both active and not cancelled, same weekday, intersecting date ranges and
// overlapping slot times. Every term must hold.
func AssignmentsConflict(a, b ScheduleDetail) bool {
	if !a.Active || a.IsCancelled || !b.Active || b.IsCancelled {
		return false
	}
	if a.Slot.DayOfWeek != b.Slot.DayOfWeek {
		return false
	}
	if a.StartDate.After(b.EndDate) || b.StartDate.After(a.EndDate) {
		return false
	}
	return TimesOverlap(a.Slot.StartTime, a.Slot.EndTime, b.Slot.StartTime, b.Slot.EndTime)
}
