package models

// QueueStats is a point-in-time snapshot of queue progress
type QueueStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Retrying  int `json:"retrying"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`

	ProgressPercent      float64 `json:"progress_percent"`
	AverageDurationMs    int64   `json:"average_duration_ms"`
	EstimatedRemainingMs int64   `json:"estimated_remaining_ms"`

	ActiveWorkers int     `json:"active_workers"`
	MemoryUsageMB float64 `json:"memory_usage_mb"`
	CPUPercent    float64 `json:"cpu_percent"`
	Paused        bool    `json:"paused"`
}
