package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-monitor/internal/model"
)

// IssueFilter specifies criteria for listing issues.
type IssueFilter struct {
	Business  string            `json:"business"`
	Status    model.IssueStatus `json:"status,omitempty"`
	Severity  model.Severity    `json:"severity,omitempty"`
	IssueType model.IssueType   `json:"issue_type,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Offset    int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for search monitoring.
type Store interface {
	// Daily stats
	ListURLs(ctx context.Context, business string) ([]string, error)
	RecentStats(ctx context.Context, business, url string, days int) ([]model.DailyStat, error)
	StatsForAllURLs(ctx context.Context, business string, since time.Time) (map[string][]model.DailyStat, error)
	NewURLs(ctx context.Context, business string, since time.Time) ([]model.PageImpressions, error)
	TopPages(ctx context.Context, business string, since time.Time, limit int) ([]model.PageImpressions, error)
	UpsertDailyStats(ctx context.Context, stats []model.DailyStat) (int64, error)

	// Issues
	UpsertActive(ctx context.Context, rec *model.IssueRecord) (bool, error)
	Resolve(ctx context.Context, id string, at time.Time, resolution model.ResolutionType) error
	MarkVerified(ctx context.Context, business, url string, at time.Time) error
	FindActiveByURL(ctx context.Context, business, url string) ([]model.IssueRecord, error)
	ListRecentlyResolved(ctx context.Context, business string, since time.Time) ([]model.IssueRecord, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]model.IssueRecord, error)
	Summary(ctx context.Context, business string) (*model.IssueSummary, error)

	// URL checks
	RecordCheck(ctx context.Context, check model.URLCheck) error
	ListRecentlyChecked(ctx context.Context, business string, since time.Time) (map[string]time.Time, error)

	// Sync log
	InsertSyncLog(ctx context.Context, entry *model.SyncLogEntry) error
	ListSyncLog(ctx context.Context, business string, limit int) ([]model.SyncLogEntry, error)
	LatestSyncLog(ctx context.Context, business string) (*model.SyncLogEntry, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// ErrIssueNotFound is returned by Resolve when no issue has the given id.
var ErrIssueNotFound = eris.New("store: issue not found")

const defaultListLimit = 100

func validateIssue(rec *model.IssueRecord) error {
	if rec == nil {
		return eris.New("store: nil issue record")
	}
	if rec.Business == "" || rec.URL == "" {
		return eris.New("store: issue requires business and url")
	}
	if !rec.IssueType.Valid() {
		return eris.Errorf("store: invalid issue type %q", rec.IssueType)
	}
	if !rec.Severity.Valid() {
		return eris.Errorf("store: invalid severity %q", rec.Severity)
	}
	return nil
}

// groupStats buckets rows (already ordered newest first) by URL.
func groupStats(rows []model.DailyStat) map[string][]model.DailyStat {
	out := make(map[string][]model.DailyStat)
	for _, r := range rows {
		out[r.URL] = append(out[r.URL], r)
	}
	return out
}
