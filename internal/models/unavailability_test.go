package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptrStr(s string) *string { return &s }

func TestCoversSlotAllDay(t *testing.T) {
	window := TeacherUnavailability{IsAllDay: true}
	assert.True(t, window.CoversSlot("09:00", "10:00"))

	// missing times behave like all-day
	partial := TeacherUnavailability{StartTime: nil, EndTime: nil}
	assert.True(t, partial.CoversSlot("09:00", "10:00"))
}

func TestCoversSlotPartialDay(t *testing.T) {
	window := TeacherUnavailability{
		StartTime: ptrStr("10:00"),
		EndTime:   ptrStr("12:00"),
	}

	assert.True(t, window.CoversSlot("11:00", "13:00"))
	assert.True(t, window.CoversSlot("09:30", "10:30"))
	assert.False(t, window.CoversSlot("08:00", "10:00"))
	assert.False(t, window.CoversSlot("12:00", "13:00"))
}
