package models

import "time"

// EventType identifies a bus event
type EventType string

const (
	EventURLStarted      EventType = "url-started"
	EventURLCompleted    EventType = "url-completed"
	EventURLFailed       EventType = "url-failed"
	EventProgress        EventType = "progress"
	EventQueueEmpty      EventType = "queue-empty"
	EventResourceWarning EventType = "resource-warning"
	EventAnalyzerWarning EventType = "analyzer-warning"
)

// Event is a single bus message. Payload type depends on Type.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// URLStartedPayload accompanies EventURLStarted
type URLStartedPayload struct {
	URL     string `json:"url"`
	Attempt int    `json:"attempt"`
}

// URLCompletedPayload accompanies EventURLCompleted
type URLCompletedPayload struct {
	Result *PageResult `json:"result"`
}

// URLFailedPayload accompanies EventURLFailed. Terminal is false when the
// URL will be retried.
type URLFailedPayload struct {
	URL      string `json:"url"`
	Error    string `json:"error"`
	Attempt  int    `json:"attempt"`
	Terminal bool   `json:"terminal"`
}

// ProgressPayload accompanies EventProgress
type ProgressPayload struct {
	Stats QueueStats `json:"stats"`
}

// ResourceWarningPayload accompanies EventResourceWarning
type ResourceWarningPayload struct {
	Kind           string  `json:"kind"` // "memory" or "cpu"
	MemoryUsageMB  float64 `json:"memory_usage_mb"`
	CPUPercent     float64 `json:"cpu_percent"`
	Paused         bool    `json:"paused"`
	ActiveRequests int     `json:"active_requests"`
}

// AnalyzerWarningPayload accompanies EventAnalyzerWarning
type AnalyzerWarningPayload struct {
	URL      string     `json:"url"`
	Analyzer AnalyzerID `json:"analyzer"`
	Error    string     `json:"error"`
}
