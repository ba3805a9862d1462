package domain

import "time"

// RefreshTrigger distinguishes scheduled from operator-invoked batch runs.
type RefreshTrigger string

const (
	TriggerAutomatic RefreshTrigger = "automatic"
	TriggerManual    RefreshTrigger = "manual"
)

// RefreshJobStatus summarizes the most recent batch refresh run. It is a
// single record overwritten per run, not a history log.
type RefreshJobStatus struct {
	JobID                 string         `json:"job_id"`
	TriggerType           RefreshTrigger `json:"trigger_type"`
	TriggerUser           string         `json:"trigger_user,omitempty"`
	StartTime             time.Time      `json:"start_time"`
	EndTime               time.Time      `json:"end_time"`
	DurationSeconds       float64        `json:"duration_seconds"`
	Status                string         `json:"status"`
	TotalConnections      int            `json:"total_connections"`
	NeedsRefresh          int            `json:"needs_refresh"`
	RefreshedSuccessfully int            `json:"refreshed_successfully"`
	RefreshFailed         int            `json:"refresh_failed"`
	Errors                []string       `json:"errors,omitempty"`
}
