package model

import "time"

// SyncStatus is the final status of an orchestrator run.
type SyncStatus string

const (
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncLogEntry summarizes one orchestrator run. One row per run, append-only.
type SyncLogEntry struct {
	ID                string         `json:"id" yaml:"id"`
	Business          string         `json:"business" yaml:"business"`
	SyncDate          time.Time      `json:"sync_date" yaml:"sync_date"`
	StartedAt         time.Time      `json:"started_at" yaml:"started_at"`
	PagesSynced       int            `json:"pages_synced" yaml:"pages_synced"`
	AnomaliesDetected int            `json:"anomalies_detected" yaml:"anomalies_detected"`
	AnomaliesByReason map[Reason]int `json:"anomalies_by_reason,omitempty" yaml:"anomalies_by_reason,omitempty"`
	URLsInspected     int            `json:"urls_inspected" yaml:"urls_inspected"`
	NewIssuesFound    int            `json:"new_issues_found" yaml:"new_issues_found"`
	IssuesResolved    int            `json:"issues_resolved" yaml:"issues_resolved"`
	APICallsUsed      int            `json:"api_calls_used" yaml:"api_calls_used"`
	InspectErrors     int            `json:"inspect_errors" yaml:"inspect_errors"`
	RateLimited       bool           `json:"rate_limited" yaml:"rate_limited"`
	SkippedInspection bool           `json:"skipped_inspection" yaml:"skipped_inspection"`
	Status            SyncStatus     `json:"status" yaml:"status"`
	DurationMS        int64          `json:"duration_ms" yaml:"duration_ms"`
	ErrorMessage      string         `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// InspectStats are the counters produced by one inspection pass.
type InspectStats struct {
	Inspected   int               `json:"inspected"`
	NewIssues   int               `json:"new_issues"`
	Refreshed   int               `json:"refreshed"`
	Resolved    int               `json:"resolved"`
	NewCritical int               `json:"new_critical"`
	Errors      int               `json:"errors"`
	APICalls    int               `json:"api_calls"`
	RateLimited bool              `json:"rate_limited"`
	ByIssueType map[IssueType]int `json:"by_issue_type,omitempty"`
}
