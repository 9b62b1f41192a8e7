package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/seo-monitor/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var issueCols = []string{
	"id", "business", "url", "issue_type", "severity", "status", "first_detected", "last_checked",
	"resolved_at", "resolution_type", "detection_reason", "verdict", "coverage_state", "page_fetch_state",
	"robots_txt_state", "indexing_state", "google_canonical", "last_crawl_time",
}

func TestPostgresStore_UpsertActive_Created(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WITH prev AS .* INSERT INTO seo.issues AS i .* ON CONFLICT \(business, url, issue_type\)`).
		WithArgs(pgxmock.AnyArg(), "acme", "https://acme.com/a", "not_found_404", "critical",
			day(2024, 1, 3), "traffic_drop", "FAIL", "", "NOT_FOUND", "", "", "", (*time.Time)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status"}).AddRow("issue-1", nil))

	rec := issue("https://acme.com/a", model.IssueNotFound, day(2024, 1, 3).Add(5*time.Hour))
	created, err := s.UpsertActive(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "issue-1", rec.ID)
	assert.True(t, rec.FirstDetected.Equal(day(2024, 1, 3)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertActive_Refresh(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	active := "active"
	mock.ExpectQuery(`INSERT INTO seo.issues`).
		WithArgs(anyArgs(14)...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status"}).AddRow("issue-1", &active))

	created, err := s.UpsertActive(context.Background(), issue("https://acme.com/a", model.IssueNotFound, day(2024, 1, 3)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertActive_ReopenResolved(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	resolved := "resolved"
	mock.ExpectQuery(`INSERT INTO seo.issues`).
		WithArgs(anyArgs(14)...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status"}).AddRow("issue-1", &resolved))

	created, err := s.UpsertActive(context.Background(), issue("https://acme.com/a", model.IssueNotFound, day(2024, 1, 3)))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertActive_DBError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO seo.issues`).
		WithArgs(anyArgs(14)...).
		WillReturnError(errors.New("connection lost"))

	_, err := s.UpsertActive(context.Background(), issue("https://acme.com/a", model.IssueNotFound, day(2024, 1, 3)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert issue")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Resolve(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := day(2024, 1, 2).Add(10 * time.Hour)
	mock.ExpectExec(`UPDATE seo.issues\s+SET status = 'resolved'`).
		WithArgs("issue-1", at, "auto_verified", day(2024, 1, 2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.Resolve(context.Background(), "issue-1", at, model.ResolutionAutoVerified))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Resolve_AlreadyResolvedIsNoop(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE seo.issues`).
		WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM seo.issues WHERE id = \$1`).
		WithArgs("issue-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("resolved"))

	require.NoError(t, s.Resolve(context.Background(), "issue-1", time.Now(), model.ResolutionAutoVerified))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Resolve_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE seo.issues`).
		WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM seo.issues`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	err := s.Resolve(context.Background(), "missing", time.Now(), model.ResolutionAutoVerified)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIssueNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindActiveByURL(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM seo.issues\s+WHERE business = \$1 AND url = \$2 AND status = 'active'`).
		WithArgs("acme", "https://acme.com/a").
		WillReturnRows(pgxmock.NewRows(issueCols).AddRow(
			"issue-1", "acme", "https://acme.com/a", "soft_404", "critical", "active",
			day(2024, 1, 1), day(2024, 1, 3), nil, "", "rotation",
			"FAIL", "Soft 404", "SOFT_404", "ALLOWED", "INDEXING_ALLOWED", "", nil,
		))

	got, err := s.FindActiveByURL(context.Background(), "acme", "https://acme.com/a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.IssueSoft404, got[0].IssueType)
	assert.Equal(t, model.IssueStatusActive, got[0].Status)
	assert.Equal(t, model.ReasonRotation, got[0].DetectionReason)
	assert.Equal(t, "SOFT_404", got[0].Diagnostics.PageFetchState)
	assert.Nil(t, got[0].ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListIssues_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE business = \$1 AND status = \$2 AND severity = \$3 ORDER BY .* LIMIT \$4 OFFSET \$5`).
		WithArgs("acme", "active", "critical", 10, 20).
		WillReturnRows(pgxmock.NewRows(issueCols))

	got, err := s.ListIssues(context.Background(), IssueFilter{
		Business: "acme",
		Status:   model.IssueStatusActive,
		Severity: model.SeverityCritical,
		Limit:    10,
		Offset:   20,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Summary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status, severity, issue_type, COUNT\(\*\)::int FROM seo.issues`).
		WithArgs("acme").
		WillReturnRows(pgxmock.NewRows([]string{"status", "severity", "issue_type", "count"}).
			AddRow("active", "critical", "not_found_404", 3).
			AddRow("active", "warning", "blocked_robots", 2).
			AddRow("resolved", "critical", "not_found_404", 5))

	sum, err := s.Summary(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Active)
	assert.Equal(t, 5, sum.Resolved)
	assert.Equal(t, 3, sum.ActiveBySeverity[model.SeverityCritical])
	assert.Equal(t, 2, sum.ActiveByType[model.IssueBlockedRobots])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StatsForAllURLs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{"business", "url", "date", "impressions", "clicks", "position", "ctr", "first_seen"}
	mock.ExpectQuery(`FROM seo.daily_stats WHERE business = \$1 AND date >= \$2`).
		WithArgs("acme", day(2024, 1, 1)).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("acme", "https://acme.com/a", day(2024, 1, 2), int64(20), int64(1), 3.5, 0.05, day(2023, 6, 1)).
			AddRow("acme", "https://acme.com/a", day(2024, 1, 1), int64(100), int64(9), 3.1, 0.09, day(2023, 6, 1)).
			AddRow("acme", "https://acme.com/b", day(2024, 1, 2), int64(7), int64(0), 9.0, 0.0, day(2024, 1, 2)))

	got, err := s.StatsForAllURLs(context.Background(), "acme", day(2024, 1, 1).Add(13*time.Hour))
	require.NoError(t, err)
	require.Len(t, got["https://acme.com/a"], 2)
	assert.Equal(t, int64(20), got["https://acme.com/a"][0].Impressions)
	assert.Len(t, got["https://acme.com/b"], 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TopPages(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`GROUP BY url ORDER BY 2 DESC, url LIMIT \$3`).
		WithArgs("acme", day(2024, 1, 1), 2).
		WillReturnRows(pgxmock.NewRows([]string{"url", "sum", "min"}).
			AddRow("https://acme.com/a", int64(900), day(2023, 1, 1)).
			AddRow("https://acme.com/b", int64(400), day(2023, 2, 1)))

	got, err := s.TopPages(context.Background(), "acme", day(2024, 1, 1), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(900), got[0].Impressions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDailyStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{"business", "url", "date", "impressions", "clicks", "position", "ctr", "first_seen"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_seo_daily_stats"}, cols).WillReturnResult(1)
	mock.ExpectExec(`LEAST\("daily_stats"."first_seen", EXCLUDED."first_seen"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertDailyStats(context.Background(), []model.DailyStat{stat("https://acme.com/a", day(2024, 1, 1), 10)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordCheck(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO seo.url_checks .* ON CONFLICT \(business, url\)`).
		WithArgs("acme", "https://acme.com/a", day(2024, 1, 5), "PASS", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordCheck(context.Background(), model.URLCheck{
		Business: "acme", URL: "https://acme.com/a", CheckedAt: day(2024, 1, 5).Add(time.Hour), Verdict: "PASS",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecentlyChecked(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT url, MAX\(checked\) FROM`).
		WithArgs("acme", day(2024, 1, 1)).
		WillReturnRows(pgxmock.NewRows([]string{"url", "max"}).
			AddRow("https://acme.com/a", day(2024, 1, 5)))

	got, err := s.ListRecentlyChecked(context.Background(), "acme", day(2024, 1, 1))
	require.NoError(t, err)
	assert.True(t, got["https://acme.com/a"].Equal(day(2024, 1, 5)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertSyncLog(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO seo.sync_log`).
		WithArgs(pgxmock.AnyArg(), "acme", day(2024, 1, 1), pgxmock.AnyArg(), 10, 2, []byte(`{"traffic_drop":2}`),
			2, 1, 0, 2, 0, false, false, "completed", int64(1500), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e := &model.SyncLogEntry{
		Business:          "acme",
		SyncDate:          day(2024, 1, 1),
		StartedAt:         day(2024, 1, 1).Add(6 * time.Hour),
		PagesSynced:       10,
		AnomaliesDetected: 2,
		AnomaliesByReason: map[model.Reason]int{model.ReasonTrafficDrop: 2},
		URLsInspected:     2,
		NewIssuesFound:    1,
		APICallsUsed:      2,
		Status:            model.SyncStatusCompleted,
		DurationMS:        1500,
	}
	require.NoError(t, s.InsertSyncLog(context.Background(), e))
	assert.NotEmpty(t, e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestSyncLog_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM seo.sync_log\s+WHERE business = \$1 ORDER BY started_at DESC LIMIT 1`).
		WithArgs("acme").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LatestSyncLog(context.Background(), "acme")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS seo`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
