package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-monitor/internal/model"
)

// Snapshot holds a point-in-time view of sync health for one business.
type Snapshot struct {
	Business string `json:"business"`

	// Latest is the most recent sync run, nil when none has run yet.
	Latest *model.SyncLogEntry `json:"latest,omitempty"`

	// NewCritical counts critical issues opened by Latest. It is only known
	// right after a run and stays zero for snapshots read from the log.
	NewCritical int `json:"new_critical"`

	// History metrics (within the lookback window).
	RunsConsidered      int        `json:"runs_considered"`
	FailedRuns          int        `json:"failed_runs"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	HoursSinceSuccess   float64    `json:"hours_since_success"`

	CollectedAt time.Time `json:"collected_at"`
}

// SyncLogQuerier abstracts the sync log reads needed by the collector.
type SyncLogQuerier interface {
	ListSyncLog(ctx context.Context, business string, limit int) ([]model.SyncLogEntry, error)
}

// Collector builds snapshots from the sync log.
type Collector struct {
	syncLog SyncLogQuerier
	now     func() time.Time
}

// NewCollector creates a new snapshot collector.
func NewCollector(syncLog SyncLogQuerier) *Collector {
	return &Collector{syncLog: syncLog, now: time.Now}
}

// Collect reads the last lookbackRuns sync entries (newest first) and
// summarizes them.
func (c *Collector) Collect(ctx context.Context, business string, lookbackRuns int) (*Snapshot, error) {
	if lookbackRuns <= 0 {
		lookbackRuns = 10
	}
	entries, err := c.syncLog.ListSyncLog(ctx, business, lookbackRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sync log")
	}
	return Summarize(business, entries, c.now().UTC()), nil
}

// Summarize builds a snapshot from entries ordered newest first.
func Summarize(business string, entries []model.SyncLogEntry, now time.Time) *Snapshot {
	snap := &Snapshot{
		Business:       business,
		RunsConsidered: len(entries),
		CollectedAt:    now,
	}
	if len(entries) == 0 {
		return snap
	}
	latest := entries[0]
	snap.Latest = &latest

	streak := true
	for _, e := range entries {
		if e.Status == model.SyncStatusFailed {
			snap.FailedRuns++
			if streak {
				snap.ConsecutiveFailures++
			}
			continue
		}
		streak = false
		if snap.LastSuccessAt == nil {
			at := e.StartedAt
			snap.LastSuccessAt = &at
		}
	}
	if snap.LastSuccessAt != nil {
		snap.HoursSinceSuccess = now.Sub(*snap.LastSuccessAt).Hours()
	}
	return snap
}

// FromEntry builds a snapshot for a run that just finished.
func FromEntry(entry *model.SyncLogEntry, newCritical int, now time.Time) *Snapshot {
	snap := Summarize(entry.Business, []model.SyncLogEntry{*entry}, now)
	snap.NewCritical = newCritical
	// Staleness needs history; a single run says nothing about it.
	snap.LastSuccessAt = nil
	snap.HoursSinceSuccess = 0
	return snap
}
