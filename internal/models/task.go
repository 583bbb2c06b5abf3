package models

import "time"

// TaskState tracks a URL through the queue lifecycle
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateInFlight  TaskState = "in-flight"
	TaskStateRetrying  TaskState = "retrying"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCancelled TaskState = "cancelled"
)

// URLTask is one unit of queue work
type URLTask struct {
	URL        string     `json:"url"`
	State      TaskState  `json:"state"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
