package jobs

import (
	"errors"
	"time"

	"docparse-backend/internal/fields"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// Job is one persisted OCR and field extraction run.
type Job struct {
	ID             string
	FileID         string
	OCR            string
	Status         string
	Fields         fields.Schema
	Result         fields.Values
	RawOCR         string
	Degraded       bool
	TypeMismatches []string
	ErrorCode      string
	ErrorMessage   string
	RequestID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// Terminal reports whether the job will not change again.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Outcome is what a successful run stores on its job.
type Outcome struct {
	Result         fields.Values
	RawOCR         string
	Degraded       bool
	TypeMismatches []string
}
