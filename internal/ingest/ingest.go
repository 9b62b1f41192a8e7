// Package ingest refreshes the daily_stats table from the search
// analytics API.
package ingest

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/seo-monitor/internal/config"
	"github.com/sells-group/seo-monitor/internal/model"
	"github.com/sells-group/seo-monitor/pkg/gsc"
)

// StatsWriter persists daily stats.
type StatsWriter interface {
	UpsertDailyStats(ctx context.Context, stats []model.DailyStat) (int64, error)
}

// Refresher pulls per-page, per-day impressions for a trailing window.
type Refresher struct {
	client   gsc.Client
	store    StatsWriter
	cfg      config.IngestConfig
	rowLimit int
	now      func() time.Time
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithRowLimit sets the page size used when paginating query results.
func WithRowLimit(n int) Option {
	return func(r *Refresher) { r.rowLimit = n }
}

// WithClock overrides the time source used to compute the date window.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a Refresher.
func NewRefresher(client gsc.Client, store StatsWriter, cfg config.IngestConfig, opts ...Option) *Refresher {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 3
	}
	if cfg.LagDays < 0 {
		cfg.LagDays = 0
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	r := &Refresher{
		client:   client,
		store:    store,
		cfg:      cfg,
		rowLimit: gsc.MaxRowLimit,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Window returns the first and last day queried. The API lags by
// LagDays, so the window ends that many days before today.
func (r *Refresher) Window() (start, end time.Time) {
	end = model.DateOf(r.now()).AddDate(0, 0, -r.cfg.LagDays)
	start = end.AddDate(0, 0, -(r.cfg.LookbackDays - 1))
	return start, end
}

// Refresh queries each day in the window and upserts the results. It
// returns the number of distinct pages synced.
func (r *Refresher) Refresh(ctx context.Context, business, site string) (int, error) {
	log := zap.L().With(
		zap.String("component", "ingest"),
		zap.String("business", business),
	)
	start, end := r.Window()

	var (
		mu   sync.Mutex
		rows = make(map[statKey]*model.DailyStat)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrency)

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		g.Go(func() error {
			dayRows, err := r.fetchDay(gctx, site, d)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, row := range dayRows {
				addRow(rows, business, d, row)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	stats := make([]model.DailyStat, 0, len(rows))
	pages := make(map[string]struct{})
	for _, s := range rows {
		stats = append(stats, *s)
		pages[s.URL] = struct{}{}
	}

	n, err := r.store.UpsertDailyStats(ctx, stats)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: upsert daily stats")
	}

	log.Info("analytics refreshed",
		zap.String("start", start.Format(time.DateOnly)),
		zap.String("end", end.Format(time.DateOnly)),
		zap.Int("pages", len(pages)),
		zap.Int64("rows", n),
	)
	return len(pages), nil
}

// fetchDay pages through one day's results until a short page or MaxPages.
func (r *Refresher) fetchDay(ctx context.Context, site string, day time.Time) ([]gsc.SearchAnalyticsRow, error) {
	date := day.Format(time.DateOnly)
	var out []gsc.SearchAnalyticsRow
	for page := 0; page < r.cfg.MaxPages; page++ {
		resp, err := r.client.QuerySearchAnalytics(ctx, site, gsc.SearchAnalyticsQuery{
			StartDate:  date,
			EndDate:    date,
			Dimensions: []string{"page", "date"},
			Type:       "web",
			RowLimit:   r.rowLimit,
			StartRow:   page * r.rowLimit,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: query %s page %d", date, page)
		}
		out = append(out, resp.Rows...)
		if len(resp.Rows) < r.rowLimit {
			return out, nil
		}
	}
	zap.L().Warn("search analytics page cap reached",
		zap.String("component", "ingest"),
		zap.String("date", date),
		zap.Int("max_pages", r.cfg.MaxPages),
	)
	return out, nil
}

type statKey struct {
	url  string
	date time.Time
}

// addRow folds an API row into the aggregate. Rows without a page key
// are dropped; a date key, when present, overrides the queried day.
func addRow(agg map[statKey]*model.DailyStat, business string, day time.Time, row gsc.SearchAnalyticsRow) {
	if len(row.Keys) == 0 || row.Keys[0] == "" {
		return
	}
	date := day
	if len(row.Keys) > 1 {
		if t, err := time.Parse(time.DateOnly, row.Keys[1]); err == nil {
			date = t
		}
	}

	k := statKey{url: row.Keys[0], date: date}
	s, ok := agg[k]
	if !ok {
		s = &model.DailyStat{
			Business:  business,
			URL:       k.url,
			Date:      date,
			FirstSeen: date,
			Position:  row.Position,
		}
		agg[k] = s
	}
	prev := s.Impressions
	s.Impressions += int64(math.Round(row.Impressions))
	s.Clicks += int64(math.Round(row.Clicks))
	// Position is impression-weighted across duplicate rows.
	if s.Impressions > 0 {
		s.Position = (s.Position*float64(prev) + row.Position*row.Impressions) / float64(s.Impressions)
		s.CTR = float64(s.Clicks) / float64(s.Impressions)
	}
}
