package queue

import (
	"time"

	"signsmith/internal/imagegen"
)

// Status tracks a job through its lifecycle. Transitions are monotonic:
// pending -> processing -> completed | failed, and pending -> cancelled.
// Terminal jobs are never mutated again except by cleanup removal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one generation request tracked from submission to terminal state.
// All fields are guarded by the owning Queue's mutex; callers outside the
// package only ever see Snapshot copies.
type Job struct {
	ID          string
	Request     imagegen.GenerateRequest
	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Progress    int
	TotalSteps  int
	Result      map[string]any
	Error       string
}

// Snapshot is the externally visible view of a job, shaped for JSON clients.
type Snapshot struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	CreatedAt   string `json:"created_at"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	Progress    int    `json:"progress"`
	TotalSteps  int    `json:"total_steps"`
	Error       string `json:"error,omitempty"`
}

func (j *Job) snapshot() Snapshot {
	s := Snapshot{
		ID:         j.ID,
		Status:     j.Status,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339Nano),
		Progress:   j.Progress,
		TotalSteps: j.TotalSteps,
		Error:      j.Error,
	}
	if j.StartedAt != nil {
		s.StartedAt = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		s.CompletedAt = j.CompletedAt.Format(time.RFC3339Nano)
	}
	return s
}
