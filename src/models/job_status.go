package models

// Job states
const (
	JobIdle    = "idle"
	JobRunning = "running"
	JobSuccess = "success"
	JobFailed  = "failed"
)

// MJobStatus is the persisted record of a scheduled job.
type MJobStatus struct {
	JobName      string `json:"job_name"`
	Status       string `json:"status"`
	LastRun      int64  `json:"last_run"`     // unix ms
	LastSuccess  int64  `json:"last_success"` // unix ms
	LastRunID    string `json:"last_run_id"`
	LastDuration int64  `json:"last_duration_ms"`
	TotalSuccess int64  `json:"total_success"`
	TotalFailure int64  `json:"total_failure"`
	TodaySuccess int64  `json:"today_success"`
	TodayFailure int64  `json:"today_failure"`
	StatsDate    string `json:"stats_date"`
	Message      string `json:"message"`
	Schedule     string `json:"schedule"`
}
