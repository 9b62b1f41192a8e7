package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/seo-monitor/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Dates are stored
// as YYYY-MM-DD text and timestamps as RFC 3339 UTC so that string
// comparison orders them correctly.
type SQLiteStore struct {
	db *sql.DB
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single writer avoids SQLITE_BUSY during daily-stats batches.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS daily_stats (
	business    TEXT NOT NULL,
	url         TEXT NOT NULL,
	date        TEXT NOT NULL,
	impressions INTEGER NOT NULL DEFAULT 0,
	clicks      INTEGER NOT NULL DEFAULT 0,
	position    REAL NOT NULL DEFAULT 0,
	ctr         REAL NOT NULL DEFAULT 0,
	first_seen  TEXT NOT NULL,
	PRIMARY KEY (business, url, date)
);

CREATE INDEX IF NOT EXISTS idx_daily_stats_business_date ON daily_stats(business, date);

CREATE TABLE IF NOT EXISTS issues (
	id               TEXT PRIMARY KEY,
	business         TEXT NOT NULL,
	url              TEXT NOT NULL,
	issue_type       TEXT NOT NULL,
	severity         TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'active',
	first_detected   TEXT NOT NULL,
	last_checked     TEXT NOT NULL,
	resolved_at      TEXT,
	resolution_type  TEXT NOT NULL DEFAULT '',
	detection_reason TEXT NOT NULL DEFAULT '',
	verdict          TEXT NOT NULL DEFAULT '',
	coverage_state   TEXT NOT NULL DEFAULT '',
	page_fetch_state TEXT NOT NULL DEFAULT '',
	robots_txt_state TEXT NOT NULL DEFAULT '',
	indexing_state   TEXT NOT NULL DEFAULT '',
	google_canonical TEXT NOT NULL DEFAULT '',
	last_crawl_time  TEXT,
	UNIQUE (business, url, issue_type),
	CHECK ((status = 'resolved') = (resolved_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_issues_business_status ON issues(business, status);
CREATE INDEX IF NOT EXISTS idx_issues_business_url ON issues(business, url);

CREATE TABLE IF NOT EXISTS url_checks (
	business     TEXT NOT NULL,
	url          TEXT NOT NULL,
	last_checked TEXT NOT NULL,
	verdict      TEXT NOT NULL DEFAULT '',
	issue_type   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (business, url)
);

CREATE TABLE IF NOT EXISTS sync_log (
	id                  TEXT PRIMARY KEY,
	business            TEXT NOT NULL,
	sync_date           TEXT NOT NULL,
	started_at          TEXT NOT NULL,
	pages_synced        INTEGER NOT NULL DEFAULT 0,
	anomalies_detected  INTEGER NOT NULL DEFAULT 0,
	anomalies_by_reason TEXT,
	urls_inspected      INTEGER NOT NULL DEFAULT 0,
	new_issues_found    INTEGER NOT NULL DEFAULT 0,
	issues_resolved     INTEGER NOT NULL DEFAULT 0,
	api_calls_used      INTEGER NOT NULL DEFAULT 0,
	inspect_errors      INTEGER NOT NULL DEFAULT 0,
	rate_limited        INTEGER NOT NULL DEFAULT 0,
	skipped_inspection  INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL,
	duration_ms         INTEGER NOT NULL DEFAULT 0,
	error_message       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_log_business_started ON sync_log(business, started_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Daily stats

func (s *SQLiteStore) ListURLs(ctx context.Context, business string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT url FROM daily_stats WHERE business = ? ORDER BY url`, business)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list urls")
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan url")
		}
		urls = append(urls, u)
	}
	return urls, eris.Wrap(rows.Err(), "sqlite: list urls iterate")
}

func (s *SQLiteStore) RecentStats(ctx context.Context, business, url string, days int) ([]model.DailyStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT business, url, date, impressions, clicks, position, ctr, first_seen
		 FROM daily_stats WHERE business = ? AND url = ?
		 ORDER BY date DESC LIMIT ?`,
		business, url, days,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: recent stats for %s", url)
	}
	return s.collectStats(rows)
}

func (s *SQLiteStore) StatsForAllURLs(ctx context.Context, business string, since time.Time) (map[string][]model.DailyStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT business, url, date, impressions, clicks, position, ctr, first_seen
		 FROM daily_stats WHERE business = ? AND date >= ?
		 ORDER BY url, date DESC`,
		business, fmtDate(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats for all urls")
	}
	stats, err := s.collectStats(rows)
	if err != nil {
		return nil, err
	}
	return groupStats(stats), nil
}

func (s *SQLiteStore) collectStats(rows *sql.Rows) ([]model.DailyStat, error) {
	defer rows.Close()

	var out []model.DailyStat
	for rows.Next() {
		var d model.DailyStat
		var date, firstSeen string
		if err := rows.Scan(&d.Business, &d.URL, &date, &d.Impressions, &d.Clicks, &d.Position, &d.CTR, &firstSeen); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily stat")
		}
		var err error
		if d.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if d.FirstSeen, err = parseDate(firstSeen); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: daily stats iterate")
}

func (s *SQLiteStore) NewURLs(ctx context.Context, business string, since time.Time) ([]model.PageImpressions, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, SUM(impressions), MIN(first_seen)
		 FROM daily_stats WHERE business = ?
		 GROUP BY url HAVING MIN(first_seen) >= ?
		 ORDER BY 2 DESC, url`,
		business, fmtDate(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: new urls")
	}
	return collectSQLitePages(rows)
}

func (s *SQLiteStore) TopPages(ctx context.Context, business string, since time.Time, limit int) ([]model.PageImpressions, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, SUM(impressions), MIN(first_seen)
		 FROM daily_stats WHERE business = ? AND date >= ?
		 GROUP BY url ORDER BY 2 DESC, url LIMIT ?`,
		business, fmtDate(since), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: top pages")
	}
	return collectSQLitePages(rows)
}

func collectSQLitePages(rows *sql.Rows) ([]model.PageImpressions, error) {
	defer rows.Close()

	var out []model.PageImpressions
	for rows.Next() {
		var p model.PageImpressions
		var firstSeen string
		if err := rows.Scan(&p.URL, &p.Impressions, &firstSeen); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page impressions")
		}
		var err error
		if p.FirstSeen, err = parseDate(firstSeen); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: page impressions iterate")
}

func (s *SQLiteStore) UpsertDailyStats(ctx context.Context, stats []model.DailyStat) (int64, error) {
	if len(stats) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert daily stats: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO daily_stats (business, url, date, impressions, clicks, position, ctr, first_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (business, url, date) DO UPDATE SET
			impressions = excluded.impressions,
			clicks = excluded.clicks,
			position = excluded.position,
			ctr = excluded.ctr,
			first_seen = MIN(daily_stats.first_seen, excluded.first_seen)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert daily stats: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, d := range stats {
		res, err := stmt.ExecContext(ctx, d.Business, d.URL, fmtDate(d.Date), d.Impressions, d.Clicks,
			d.Position, d.CTR, fmtDate(d.FirstSeen))
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert daily stat %s %s", d.URL, fmtDate(d.Date))
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert daily stats: commit")
	}
	return n, nil
}

// Issues

func (s *SQLiteStore) UpsertActive(ctx context.Context, rec *model.IssueRecord) (bool, error) {
	if err := validateIssue(rec); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: upsert issue: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	checked := model.DateOf(rec.LastChecked)
	d := rec.Diagnostics

	var id, status, firstDetected string
	err = tx.QueryRowContext(ctx,
		`SELECT id, status, first_detected FROM issues WHERE business = ? AND url = ? AND issue_type = ?`,
		rec.Business, rec.URL, string(rec.IssueType),
	).Scan(&id, &status, &firstDetected)

	var created bool
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		id = rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO issues (id, business, url, issue_type, severity, status, first_detected, last_checked,
				resolution_type, detection_reason, verdict, coverage_state, page_fetch_state,
				robots_txt_state, indexing_state, google_canonical, last_crawl_time)
			 VALUES (?, ?, ?, ?, ?, 'active', ?, ?, '', ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, rec.Business, rec.URL, string(rec.IssueType), string(rec.Severity),
			fmtDate(checked), fmtDate(checked), string(rec.DetectionReason),
			d.Verdict, d.CoverageState, d.PageFetchState, d.RobotsTxtState, d.IndexingState,
			d.GoogleCanonical, fmtTimePtr(d.LastCrawlTime),
		)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: insert issue %s %s", rec.IssueType, rec.URL)
		}
		firstDetected = fmtDate(checked)
	case err != nil:
		return false, eris.Wrapf(err, "sqlite: lookup issue %s %s", rec.IssueType, rec.URL)
	default:
		created = status != string(model.IssueStatusActive)
		if created {
			firstDetected = fmtDate(checked)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE issues SET severity = ?, status = 'active', first_detected = ?, last_checked = ?,
				resolved_at = NULL, resolution_type = '', detection_reason = ?, verdict = ?,
				coverage_state = ?, page_fetch_state = ?, robots_txt_state = ?, indexing_state = ?,
				google_canonical = ?, last_crawl_time = ?
			 WHERE id = ?`,
			string(rec.Severity), firstDetected, fmtDate(checked), string(rec.DetectionReason),
			d.Verdict, d.CoverageState, d.PageFetchState, d.RobotsTxtState, d.IndexingState,
			d.GoogleCanonical, fmtTimePtr(d.LastCrawlTime), id,
		)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: update issue %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: upsert issue: commit")
	}

	rec.ID = id
	rec.Status = model.IssueStatusActive
	rec.LastChecked = checked
	rec.ResolvedAt = nil
	rec.ResolutionType = model.ResolutionNone
	rec.FirstDetected, _ = parseDate(firstDetected)
	return created, nil
}

func (s *SQLiteStore) Resolve(ctx context.Context, id string, at time.Time, resolution model.ResolutionType) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE issues SET status = 'resolved', resolved_at = ?, resolution_type = ?, last_checked = ?
		 WHERE id = ? AND status = 'active'`,
		fmtTime(at), string(resolution), fmtDate(at), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve issue %s", id)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM issues WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrIssueNotFound, "sqlite: resolve issue %s", id)
	}
	return eris.Wrapf(err, "sqlite: resolve issue %s lookup", id)
}

func (s *SQLiteStore) MarkVerified(ctx context.Context, business, url string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues SET last_checked = ?
		 WHERE business = ? AND url = ? AND status = 'resolved' AND last_checked < ?`,
		fmtDate(at), business, url, fmtDate(at),
	)
	return eris.Wrapf(err, "sqlite: mark verified %s", url)
}

const sqliteIssueColumns = `id, business, url, issue_type, severity, status, first_detected, last_checked,
	resolved_at, resolution_type, detection_reason, verdict, coverage_state, page_fetch_state,
	robots_txt_state, indexing_state, google_canonical, last_crawl_time`

func (s *SQLiteStore) FindActiveByURL(ctx context.Context, business, url string) ([]model.IssueRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteIssueColumns+` FROM issues
		 WHERE business = ? AND url = ? AND status = 'active' ORDER BY issue_type`,
		business, url,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find active issues for %s", url)
	}
	return collectSQLiteIssues(rows)
}

func (s *SQLiteStore) ListRecentlyResolved(ctx context.Context, business string, since time.Time) ([]model.IssueRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteIssueColumns+` FROM issues
		 WHERE business = ? AND status = 'resolved' AND resolved_at >= ?
		 ORDER BY resolved_at DESC, url`,
		business, fmtTime(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recently resolved")
	}
	return collectSQLiteIssues(rows)
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueFilter) ([]model.IssueRecord, error) {
	query := `SELECT ` + sqliteIssueColumns + ` FROM issues WHERE business = ?`
	args := []any{filter.Business}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	if filter.IssueType != "" {
		query += ` AND issue_type = ?`
		args = append(args, string(filter.IssueType))
	}
	query += ` ORDER BY last_checked DESC, url, issue_type`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list issues")
	}
	return collectSQLiteIssues(rows)
}

func collectSQLiteIssues(rows *sql.Rows) ([]model.IssueRecord, error) {
	defer rows.Close()

	var out []model.IssueRecord
	for rows.Next() {
		var (
			r                          model.IssueRecord
			it, sev, status, res, reas string
			firstDetected, lastChecked string
			resolvedAt, lastCrawl      sql.NullString
		)
		d := &r.Diagnostics
		if err := rows.Scan(&r.ID, &r.Business, &r.URL, &it, &sev, &status,
			&firstDetected, &lastChecked, &resolvedAt, &res, &reas,
			&d.Verdict, &d.CoverageState, &d.PageFetchState, &d.RobotsTxtState, &d.IndexingState,
			&d.GoogleCanonical, &lastCrawl); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan issue")
		}
		r.IssueType = model.IssueType(it)
		r.Severity = model.Severity(sev)
		r.Status = model.IssueStatus(status)
		r.ResolutionType = model.ResolutionType(res)
		r.DetectionReason = model.Reason(reas)

		var err error
		if r.FirstDetected, err = parseDate(firstDetected); err != nil {
			return nil, err
		}
		if r.LastChecked, err = parseDate(lastChecked); err != nil {
			return nil, err
		}
		if r.ResolvedAt, err = parseTimePtr(resolvedAt); err != nil {
			return nil, err
		}
		if d.LastCrawlTime, err = parseTimePtr(lastCrawl); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: issues iterate")
}

func (s *SQLiteStore) Summary(ctx context.Context, business string) (*model.IssueSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, severity, issue_type, COUNT(*) FROM issues
		 WHERE business = ? GROUP BY status, severity, issue_type`,
		business,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: issue summary")
	}
	defer rows.Close()

	sum := model.NewIssueSummary(business)
	for rows.Next() {
		var status, sev, it string
		var n int
		if err := rows.Scan(&status, &sev, &it, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		sum.Add(model.IssueStatus(status), model.Severity(sev), model.IssueType(it), n)
	}
	return sum, eris.Wrap(rows.Err(), "sqlite: summary iterate")
}

// URL checks

func (s *SQLiteStore) RecordCheck(ctx context.Context, check model.URLCheck) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO url_checks (business, url, last_checked, verdict, issue_type)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (business, url) DO UPDATE SET
			last_checked = MAX(url_checks.last_checked, excluded.last_checked),
			verdict = excluded.verdict, issue_type = excluded.issue_type`,
		check.Business, check.URL, fmtDate(check.CheckedAt), check.Verdict, string(check.IssueType),
	)
	return eris.Wrapf(err, "sqlite: record check %s", check.URL)
}

func (s *SQLiteStore) ListRecentlyChecked(ctx context.Context, business string, since time.Time) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, MAX(checked) FROM (
			SELECT url, last_checked AS checked FROM url_checks WHERE business = ? AND last_checked >= ?
			UNION ALL
			SELECT url, last_checked FROM issues WHERE business = ? AND last_checked >= ?
		 ) GROUP BY url`,
		business, fmtDate(since), business, fmtDate(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recently checked")
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var u, checked string
		if err := rows.Scan(&u, &checked); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recently checked")
		}
		t, err := parseDate(checked)
		if err != nil {
			return nil, err
		}
		out[u] = t
	}
	return out, eris.Wrap(rows.Err(), "sqlite: recently checked iterate")
}

// Sync log

func (s *SQLiteStore) InsertSyncLog(ctx context.Context, e *model.SyncLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	byReason, err := json.Marshal(e.AnomaliesByReason)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal anomalies by reason")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_log (`+syncLogColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Business, fmtDate(e.SyncDate), fmtTime(e.StartedAt), e.PagesSynced, e.AnomaliesDetected,
		string(byReason), e.URLsInspected, e.NewIssuesFound, e.IssuesResolved, e.APICallsUsed,
		e.InspectErrors, e.RateLimited, e.SkippedInspection, string(e.Status), e.DurationMS, e.ErrorMessage,
	)
	return eris.Wrapf(err, "sqlite: insert sync log for %s", e.Business)
}

func (s *SQLiteStore) ListSyncLog(ctx context.Context, business string, limit int) ([]model.SyncLogEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+syncLogColumns+` FROM sync_log
		 WHERE business = ? ORDER BY started_at DESC LIMIT ?`,
		business, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sync log")
	}
	defer rows.Close()

	var entries []model.SyncLogEntry
	for rows.Next() {
		e, err := scanSQLiteSyncLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: sync log iterate")
}

func (s *SQLiteStore) LatestSyncLog(ctx context.Context, business string) (*model.SyncLogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncLogColumns+` FROM sync_log
		 WHERE business = ? ORDER BY started_at DESC LIMIT 1`,
		business,
	)
	e, err := scanSQLiteSyncLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteSyncLog(row scannable) (*model.SyncLogEntry, error) {
	var (
		e                   model.SyncLogEntry
		syncDate, startedAt string
		byReason            sql.NullString
		status              string
	)
	err := row.Scan(&e.ID, &e.Business, &syncDate, &startedAt, &e.PagesSynced, &e.AnomaliesDetected, &byReason,
		&e.URLsInspected, &e.NewIssuesFound, &e.IssuesResolved, &e.APICallsUsed, &e.InspectErrors,
		&e.RateLimited, &e.SkippedInspection, &status, &e.DurationMS, &e.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan sync log")
	}
	e.Status = model.SyncStatus(status)
	if e.SyncDate, err = parseDate(syncDate); err != nil {
		return nil, err
	}
	if e.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if byReason.Valid && byReason.String != "" {
		if err := json.Unmarshal([]byte(byReason.String), &e.AnomaliesByReason); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal anomalies by reason")
		}
	}
	return &e, nil
}

// helpers

func fmtDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	return t, eris.Wrapf(err, "sqlite: parse date %q", s)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
