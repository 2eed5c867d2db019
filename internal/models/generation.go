package models

import (
	"encoding/json"
	"time"
)

// Timetable generation attempt states.
const (
	GenerationRunning   = "RUNNING"
	GenerationCompleted = "COMPLETED"
	GenerationFailed    = "FAILED"
	GenerationCancelled = "CANCELLED"
)

// TimetableGeneration is an opaque audit record of a generation attempt. The
// generation algorithm itself lives outside this service; only the lifecycle
// of the attempt is tracked here.
type TimetableGeneration struct {
	ID           string          `db:"id" json:"id"`
	Status       string          `db:"status" json:"status"`
	StartedAt    time.Time       `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	Parameters   json.RawMessage `db:"parameters" json:"parameters"`
	Results      json.RawMessage `db:"results" json:"results,omitempty"`
	ErrorMessage string          `db:"error_message" json:"error_message"`
	CreatedBy    *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
