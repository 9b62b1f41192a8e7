package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/seo-monitor/internal/db"
	"github.com/sells-group/seo-monitor/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlUpsertIssue = `WITH prev AS (
	SELECT status FROM seo.issues WHERE business = $2 AND url = $3 AND issue_type = $4
)
INSERT INTO seo.issues AS i (
	id, business, url, issue_type, severity, status, first_detected, last_checked,
	resolved_at, resolution_type, detection_reason, verdict, coverage_state,
	page_fetch_state, robots_txt_state, indexing_state, google_canonical, last_crawl_time
) VALUES ($1, $2, $3, $4, $5, 'active', $6, $6, NULL, '', $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (business, url, issue_type) DO UPDATE SET
	severity = EXCLUDED.severity,
	status = 'active',
	first_detected = CASE WHEN i.status = 'resolved' THEN EXCLUDED.first_detected ELSE i.first_detected END,
	last_checked = EXCLUDED.last_checked,
	resolved_at = NULL,
	resolution_type = '',
	detection_reason = EXCLUDED.detection_reason,
	verdict = EXCLUDED.verdict,
	coverage_state = EXCLUDED.coverage_state,
	page_fetch_state = EXCLUDED.page_fetch_state,
	robots_txt_state = EXCLUDED.robots_txt_state,
	indexing_state = EXCLUDED.indexing_state,
	google_canonical = EXCLUDED.google_canonical,
	last_crawl_time = EXCLUDED.last_crawl_time,
	updated_at = now()
RETURNING i.id, (SELECT status FROM prev)`

	sqlResolveIssue = `UPDATE seo.issues
	SET status = 'resolved', resolved_at = $2, resolution_type = $3, last_checked = $4, updated_at = now()
	WHERE id = $1 AND status = 'active'`

	sqlFindActive = `SELECT ` + issueColumns + ` FROM seo.issues
	WHERE business = $1 AND url = $2 AND status = 'active' ORDER BY issue_type`

	sqlRecordCheck = `INSERT INTO seo.url_checks (business, url, last_checked, verdict, issue_type)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (business, url) DO UPDATE SET
		last_checked = GREATEST(seo.url_checks.last_checked, EXCLUDED.last_checked),
		verdict = EXCLUDED.verdict, issue_type = EXCLUDED.issue_type`

	sqlInsertSyncLog = `INSERT INTO seo.sync_log (
	id, business, sync_date, started_at, pages_synced, anomalies_detected, anomalies_by_reason,
	urls_inspected, new_issues_found, issues_resolved, api_calls_used, inspect_errors,
	rate_limited, skipped_inspection, status, duration_ms, error_message
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	issueColumns = `id, business, url, issue_type, severity, status, first_detected, last_checked,
	resolved_at, resolution_type, detection_reason, verdict, coverage_state, page_fetch_state,
	robots_txt_state, indexing_state, google_canonical, last_crawl_time`

	syncLogColumns = `id, business, sync_date, started_at, pages_synced, anomalies_detected, anomalies_by_reason,
	urls_inspected, new_issues_found, issues_resolved, api_calls_used, inspect_errors,
	rate_limited, skipped_inspection, status, duration_ms, error_message`
)

// preparedStatements lists queries to prepare on each new connection. The
// inspector issues these once per URL, so they dominate a sync run.
var preparedStatements = map[string]string{
	"upsert_issue":    sqlUpsertIssue,
	"resolve_issue":   sqlResolveIssue,
	"find_active":     sqlFindActive,
	"record_check":    sqlRecordCheck,
	"insert_sync_log": sqlInsertSyncLog,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Statements reference seo.* tables, which do not exist before Migrate.
		var exists bool
		if err := conn.QueryRow(ctx, `SELECT to_regclass('seo.sync_log') IS NOT NULL`).Scan(&exists); err != nil || !exists {
			return nil
		}
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS seo;

CREATE TABLE IF NOT EXISTS seo.daily_stats (
	business    TEXT NOT NULL,
	url         TEXT NOT NULL,
	date        DATE NOT NULL,
	impressions BIGINT NOT NULL DEFAULT 0,
	clicks      BIGINT NOT NULL DEFAULT 0,
	position    DOUBLE PRECISION NOT NULL DEFAULT 0,
	ctr         DOUBLE PRECISION NOT NULL DEFAULT 0,
	first_seen  DATE NOT NULL,
	PRIMARY KEY (business, url, date)
);

CREATE INDEX IF NOT EXISTS idx_daily_stats_business_date ON seo.daily_stats(business, date DESC);
CREATE INDEX IF NOT EXISTS idx_daily_stats_first_seen ON seo.daily_stats(business, first_seen);

CREATE TABLE IF NOT EXISTS seo.issues (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business         TEXT NOT NULL,
	url              TEXT NOT NULL,
	issue_type       TEXT NOT NULL,
	severity         TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'active',
	first_detected   DATE NOT NULL,
	last_checked     DATE NOT NULL,
	resolved_at      TIMESTAMPTZ,
	resolution_type  TEXT NOT NULL DEFAULT '',
	detection_reason TEXT NOT NULL DEFAULT '',
	verdict          TEXT NOT NULL DEFAULT '',
	coverage_state   TEXT NOT NULL DEFAULT '',
	page_fetch_state TEXT NOT NULL DEFAULT '',
	robots_txt_state TEXT NOT NULL DEFAULT '',
	indexing_state   TEXT NOT NULL DEFAULT '',
	google_canonical TEXT NOT NULL DEFAULT '',
	last_crawl_time  TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (business, url, issue_type),
	CHECK ((status = 'resolved') = (resolved_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_issues_business_status ON seo.issues(business, status);
CREATE INDEX IF NOT EXISTS idx_issues_business_url ON seo.issues(business, url);
CREATE INDEX IF NOT EXISTS idx_issues_resolved_at ON seo.issues(business, resolved_at) WHERE status = 'resolved';

CREATE TABLE IF NOT EXISTS seo.url_checks (
	business     TEXT NOT NULL,
	url          TEXT NOT NULL,
	last_checked DATE NOT NULL,
	verdict      TEXT NOT NULL DEFAULT '',
	issue_type   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (business, url)
);

CREATE TABLE IF NOT EXISTS seo.sync_log (
	id                  TEXT PRIMARY KEY,
	business            TEXT NOT NULL,
	sync_date           DATE NOT NULL,
	started_at          TIMESTAMPTZ NOT NULL,
	pages_synced        INTEGER NOT NULL DEFAULT 0,
	anomalies_detected  INTEGER NOT NULL DEFAULT 0,
	anomalies_by_reason JSONB,
	urls_inspected      INTEGER NOT NULL DEFAULT 0,
	new_issues_found    INTEGER NOT NULL DEFAULT 0,
	issues_resolved     INTEGER NOT NULL DEFAULT 0,
	api_calls_used      INTEGER NOT NULL DEFAULT 0,
	inspect_errors      INTEGER NOT NULL DEFAULT 0,
	rate_limited        BOOLEAN NOT NULL DEFAULT false,
	skipped_inspection  BOOLEAN NOT NULL DEFAULT false,
	status              TEXT NOT NULL,
	duration_ms         BIGINT NOT NULL DEFAULT 0,
	error_message       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_log_business_started ON seo.sync_log(business, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Daily stats

func (s *PostgresStore) ListURLs(ctx context.Context, business string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT url FROM seo.daily_stats WHERE business = $1 ORDER BY url`,
		business,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list urls")
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "postgres: scan url")
		}
		urls = append(urls, u)
	}
	return urls, eris.Wrap(rows.Err(), "postgres: list urls iterate")
}

func (s *PostgresStore) RecentStats(ctx context.Context, business, url string, days int) ([]model.DailyStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT business, url, date, impressions, clicks, position, ctr, first_seen
		 FROM seo.daily_stats WHERE business = $1 AND url = $2
		 ORDER BY date DESC LIMIT $3`,
		business, url, days,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: recent stats for %s", url)
	}
	return collectStats(rows)
}

func (s *PostgresStore) StatsForAllURLs(ctx context.Context, business string, since time.Time) (map[string][]model.DailyStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT business, url, date, impressions, clicks, position, ctr, first_seen
		 FROM seo.daily_stats WHERE business = $1 AND date >= $2
		 ORDER BY url, date DESC`,
		business, model.DateOf(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats for all urls")
	}
	stats, err := collectStats(rows)
	if err != nil {
		return nil, err
	}
	return groupStats(stats), nil
}

func collectStats(rows pgx.Rows) ([]model.DailyStat, error) {
	defer rows.Close()

	var out []model.DailyStat
	for rows.Next() {
		var d model.DailyStat
		if err := rows.Scan(&d.Business, &d.URL, &d.Date, &d.Impressions, &d.Clicks, &d.Position, &d.CTR, &d.FirstSeen); err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily stat")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: daily stats iterate")
}

func (s *PostgresStore) NewURLs(ctx context.Context, business string, since time.Time) ([]model.PageImpressions, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url, SUM(impressions)::bigint, MIN(first_seen)
		 FROM seo.daily_stats WHERE business = $1
		 GROUP BY url HAVING MIN(first_seen) >= $2
		 ORDER BY 2 DESC, url`,
		business, model.DateOf(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: new urls")
	}
	return collectPages(rows)
}

func (s *PostgresStore) TopPages(ctx context.Context, business string, since time.Time, limit int) ([]model.PageImpressions, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url, SUM(impressions)::bigint, MIN(first_seen)
		 FROM seo.daily_stats WHERE business = $1 AND date >= $2
		 GROUP BY url ORDER BY 2 DESC, url LIMIT $3`,
		business, model.DateOf(since), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: top pages")
	}
	return collectPages(rows)
}

func collectPages(rows pgx.Rows) ([]model.PageImpressions, error) {
	defer rows.Close()

	var out []model.PageImpressions
	for rows.Next() {
		var p model.PageImpressions
		if err := rows.Scan(&p.URL, &p.Impressions, &p.FirstSeen); err != nil {
			return nil, eris.Wrap(err, "postgres: scan page impressions")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: page impressions iterate")
}

// UpsertDailyStats writes stats through a COPY-backed upsert keyed by
// (business, url, date). first_seen never moves later on conflict.
func (s *PostgresStore) UpsertDailyStats(ctx context.Context, stats []model.DailyStat) (int64, error) {
	rows := make([][]any, 0, len(stats))
	for _, d := range stats {
		rows = append(rows, []any{
			d.Business, d.URL, model.DateOf(d.Date), d.Impressions, d.Clicks,
			d.Position, d.CTR, model.DateOf(d.FirstSeen),
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "seo.daily_stats",
		Columns:      []string{"business", "url", "date", "impressions", "clicks", "position", "ctr", "first_seen"},
		ConflictKeys: []string{"business", "url", "date"},
		UpdateExprs: map[string]string{
			"first_seen": `LEAST("daily_stats"."first_seen", EXCLUDED."first_seen")`,
		},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert daily stats")
}

// Issues

func (s *PostgresStore) UpsertActive(ctx context.Context, rec *model.IssueRecord) (bool, error) {
	if err := validateIssue(rec); err != nil {
		return false, err
	}
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	checked := model.DateOf(rec.LastChecked)
	d := rec.Diagnostics

	var prev *string
	err := s.pool.QueryRow(ctx, sqlUpsertIssue,
		id, rec.Business, rec.URL, string(rec.IssueType), string(rec.Severity), checked,
		string(rec.DetectionReason), d.Verdict, d.CoverageState, d.PageFetchState,
		d.RobotsTxtState, d.IndexingState, d.GoogleCanonical, d.LastCrawlTime,
	).Scan(&rec.ID, &prev)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert issue %s %s", rec.IssueType, rec.URL)
	}

	created := prev == nil || *prev != string(model.IssueStatusActive)
	rec.Status = model.IssueStatusActive
	rec.LastChecked = checked
	rec.ResolvedAt = nil
	rec.ResolutionType = model.ResolutionNone
	if created {
		rec.FirstDetected = checked
	}
	return created, nil
}

func (s *PostgresStore) Resolve(ctx context.Context, id string, at time.Time, resolution model.ResolutionType) error {
	tag, err := s.pool.Exec(ctx, sqlResolveIssue, id, at.UTC(), string(resolution), model.DateOf(at))
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve issue %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish an already-resolved issue (no-op) from a missing one.
	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM seo.issues WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrIssueNotFound, "postgres: resolve issue %s", id)
	}
	return eris.Wrapf(err, "postgres: resolve issue %s lookup", id)
}

func (s *PostgresStore) MarkVerified(ctx context.Context, business, url string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE seo.issues SET last_checked = $3, updated_at = now()
		 WHERE business = $1 AND url = $2 AND status = 'resolved' AND last_checked < $3`,
		business, url, model.DateOf(at),
	)
	return eris.Wrapf(err, "postgres: mark verified %s", url)
}

func (s *PostgresStore) FindActiveByURL(ctx context.Context, business, url string) ([]model.IssueRecord, error) {
	rows, err := s.pool.Query(ctx, sqlFindActive, business, url)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find active issues for %s", url)
	}
	return collectIssues(rows)
}

func (s *PostgresStore) ListRecentlyResolved(ctx context.Context, business string, since time.Time) ([]model.IssueRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+issueColumns+` FROM seo.issues
		 WHERE business = $1 AND status = 'resolved' AND resolved_at >= $2
		 ORDER BY resolved_at DESC, url`,
		business, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recently resolved")
	}
	return collectIssues(rows)
}

func (s *PostgresStore) ListIssues(ctx context.Context, filter IssueFilter) ([]model.IssueRecord, error) {
	query := `SELECT ` + issueColumns + ` FROM seo.issues WHERE business = $1`
	args := []any{filter.Business}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(` AND severity = $%d`, argIdx)
		args = append(args, string(filter.Severity))
		argIdx++
	}
	if filter.IssueType != "" {
		query += fmt.Sprintf(` AND issue_type = $%d`, argIdx)
		args = append(args, string(filter.IssueType))
		argIdx++
	}
	query += ` ORDER BY last_checked DESC, url, issue_type`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list issues")
	}
	return collectIssues(rows)
}

func collectIssues(rows pgx.Rows) ([]model.IssueRecord, error) {
	defer rows.Close()

	var out []model.IssueRecord
	for rows.Next() {
		var r model.IssueRecord
		d := &r.Diagnostics
		if err := rows.Scan(&r.ID, &r.Business, &r.URL, &r.IssueType, &r.Severity, &r.Status,
			&r.FirstDetected, &r.LastChecked, &r.ResolvedAt, &r.ResolutionType, &r.DetectionReason,
			&d.Verdict, &d.CoverageState, &d.PageFetchState, &d.RobotsTxtState, &d.IndexingState,
			&d.GoogleCanonical, &d.LastCrawlTime); err != nil {
			return nil, eris.Wrap(err, "postgres: scan issue")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: issues iterate")
}

func (s *PostgresStore) Summary(ctx context.Context, business string) (*model.IssueSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, severity, issue_type, COUNT(*)::int FROM seo.issues
		 WHERE business = $1 GROUP BY status, severity, issue_type`,
		business,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: issue summary")
	}
	defer rows.Close()

	sum := model.NewIssueSummary(business)
	for rows.Next() {
		var (
			status model.IssueStatus
			sev    model.Severity
			it     model.IssueType
			n      int
		)
		if err := rows.Scan(&status, &sev, &it, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		sum.Add(status, sev, it, n)
	}
	return sum, eris.Wrap(rows.Err(), "postgres: summary iterate")
}

// URL checks

func (s *PostgresStore) RecordCheck(ctx context.Context, check model.URLCheck) error {
	_, err := s.pool.Exec(ctx, sqlRecordCheck,
		check.Business, check.URL, model.DateOf(check.CheckedAt), check.Verdict, string(check.IssueType),
	)
	return eris.Wrapf(err, "postgres: record check %s", check.URL)
}

// ListRecentlyChecked merges url_checks with issue last_checked dates so rows
// written before url_checks existed still count.
func (s *PostgresStore) ListRecentlyChecked(ctx context.Context, business string, since time.Time) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url, MAX(checked) FROM (
			SELECT url, last_checked AS checked FROM seo.url_checks WHERE business = $1 AND last_checked >= $2
			UNION ALL
			SELECT url, last_checked FROM seo.issues WHERE business = $1 AND last_checked >= $2
		 ) c GROUP BY url`,
		business, model.DateOf(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recently checked")
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			u string
			t time.Time
		)
		if err := rows.Scan(&u, &t); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recently checked")
		}
		out[u] = t
	}
	return out, eris.Wrap(rows.Err(), "postgres: recently checked iterate")
}

// Sync log

func (s *PostgresStore) InsertSyncLog(ctx context.Context, e *model.SyncLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	byReason, err := json.Marshal(e.AnomaliesByReason)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal anomalies by reason")
	}

	_, err = s.pool.Exec(ctx, sqlInsertSyncLog,
		e.ID, e.Business, model.DateOf(e.SyncDate), e.StartedAt.UTC(), e.PagesSynced, e.AnomaliesDetected, byReason,
		e.URLsInspected, e.NewIssuesFound, e.IssuesResolved, e.APICallsUsed, e.InspectErrors,
		e.RateLimited, e.SkippedInspection, string(e.Status), e.DurationMS, e.ErrorMessage,
	)
	return eris.Wrapf(err, "postgres: insert sync log for %s", e.Business)
}

func (s *PostgresStore) ListSyncLog(ctx context.Context, business string, limit int) ([]model.SyncLogEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+syncLogColumns+` FROM seo.sync_log
		 WHERE business = $1 ORDER BY started_at DESC LIMIT $2`,
		business, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sync log")
	}
	defer rows.Close()

	var entries []model.SyncLogEntry
	for rows.Next() {
		e, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: sync log iterate")
}

func (s *PostgresStore) LatestSyncLog(ctx context.Context, business string) (*model.SyncLogEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+syncLogColumns+` FROM seo.sync_log
		 WHERE business = $1 ORDER BY started_at DESC LIMIT 1`,
		business,
	)
	e, err := scanSyncLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func scanSyncLog(row pgx.Row) (*model.SyncLogEntry, error) {
	var e model.SyncLogEntry
	var byReason []byte
	err := row.Scan(&e.ID, &e.Business, &e.SyncDate, &e.StartedAt, &e.PagesSynced, &e.AnomaliesDetected, &byReason,
		&e.URLsInspected, &e.NewIssuesFound, &e.IssuesResolved, &e.APICallsUsed, &e.InspectErrors,
		&e.RateLimited, &e.SkippedInspection, &e.Status, &e.DurationMS, &e.ErrorMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan sync log")
	}
	if len(byReason) > 0 {
		if err := json.Unmarshal(byReason, &e.AnomaliesByReason); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal anomalies by reason")
		}
	}
	return &e, nil
}
