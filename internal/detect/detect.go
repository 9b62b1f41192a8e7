// Package detect scans daily search stats and issue history for URLs that
// deserve a URL inspection call.
package detect

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/seo-monitor/internal/config"
	"github.com/sells-group/seo-monitor/internal/model"
)

// Reader is the read-only subset of the store the detectors need.
type Reader interface {
	StatsForAllURLs(ctx context.Context, business string, since time.Time) (map[string][]model.DailyStat, error)
	NewURLs(ctx context.Context, business string, since time.Time) ([]model.PageImpressions, error)
	TopPages(ctx context.Context, business string, since time.Time, limit int) ([]model.PageImpressions, error)
	ListRecentlyChecked(ctx context.Context, business string, since time.Time) (map[string]time.Time, error)
	ListRecentlyResolved(ctx context.Context, business string, since time.Time) ([]model.IssueRecord, error)
}

// Detector runs the four anomaly detectors against a Reader.
type Detector struct {
	reader Reader
	cfg    config.DetectConfig
	now    func() time.Time
}

// New creates a Detector. Zero-valued thresholds in cfg fall back to defaults.
func New(reader Reader, cfg config.DetectConfig) *Detector {
	return &Detector{
		reader: reader,
		cfg:    withDefaults(cfg),
		now:    time.Now,
	}
}

// WithClock overrides the detector's notion of "now".
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

func withDefaults(cfg config.DetectConfig) config.DetectConfig {
	if cfg.MinImpressions <= 0 {
		cfg.MinImpressions = 10
	}
	if cfg.DropThreshold <= 0 {
		cfg.DropThreshold = 50
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 8
	}
	if cfg.MinHistoryDays <= 0 {
		cfg.MinHistoryDays = 3
	}
	if cfg.NewURLWindowDays <= 0 {
		cfg.NewURLWindowDays = 2
	}
	if cfg.RecheckDays <= 0 {
		cfg.RecheckDays = 7
	}
	if cfg.FixWindowDays <= 0 {
		cfg.FixWindowDays = 7
	}
	if cfg.FixPriority <= 0 {
		cfg.FixPriority = 100
	}
	if cfg.RotationTopN <= 0 {
		cfg.RotationTopN = 100
	}
	if cfg.RotationWindowDays <= 0 {
		cfg.RotationWindowDays = 30
	}
	if cfg.RotationDivisor <= 0 {
		cfg.RotationDivisor = 100
	}
	if cfg.NewURLPriorityFloor <= 0 {
		cfg.NewURLPriorityFloor = 1
	}
	return cfg
}

func (d *Detector) today() time.Time {
	return model.DateOf(d.now())
}

func (d *Detector) daysAgo(n int) time.Time {
	return d.today().AddDate(0, 0, -n)
}

// TrafficDrop flags URLs whose impressions on the latest data day fell at
// least DropThreshold percent below their trailing average. The window is
// anchored on the newest date stored for the business, not on each URL's
// own newest row, so a page that drops out of the feed reads as zero
// impressions. Recency of the last inspection is ignored: a drop is
// time-sensitive.
func (d *Detector) TrafficDrop(ctx context.Context, business string) ([]model.Candidate, error) {
	// Read twice the history window so reporting lag still leaves a full window.
	byURL, err := d.reader.StatsForAllURLs(ctx, business, d.daysAgo(2*d.cfg.HistoryDays))
	if err != nil {
		return nil, eris.Wrap(err, "detect: traffic drop: load stats")
	}

	anchor, ok := latestDate(byURL)
	if !ok {
		d.log("traffic_drop", business, 0, 0)
		return nil, nil
	}

	var out []model.Candidate
	for url, stats := range byURL {
		days, rows := dailySeries(stats, anchor, d.cfg.HistoryDays)
		if rows < d.cfg.MinHistoryDays {
			continue
		}
		drop, ok := Drop(days, d.cfg.MinHistoryDays, d.cfg.MinImpressions)
		if !ok || drop.Percent < d.cfg.DropThreshold {
			continue
		}
		out = append(out, model.Candidate{
			URL:      url,
			Reason:   model.ReasonTrafficDrop,
			Priority: int(math.Round(drop.Percent)),
			Evidence: map[string]any{
				"avg7d":        drop.Average,
				"current":      drop.Current,
				"drop_percent": drop.Percent,
				"days":         len(days),
				"as_of":        anchor.Format(time.DateOnly),
			},
		})
	}
	sortCandidates(out)
	d.log("traffic_drop", business, len(byURL), len(out))
	return out, nil
}

func latestDate(byURL map[string][]model.DailyStat) (time.Time, bool) {
	var latest time.Time
	for _, stats := range byURL {
		for _, s := range stats {
			if day := model.DateOf(s.Date); day.After(latest) {
				latest = day
			}
		}
	}
	return latest, !latest.IsZero()
}

// dailySeries lays out a URL's impressions newest first, one entry per day
// from anchor back across at most days days, stopping at the URL's earliest
// row inside that window. Days without a row count as zero impressions.
// rows is the number of stored rows that fell inside the window.
func dailySeries(stats []model.DailyStat, anchor time.Time, days int) ([]model.DailyStat, int) {
	byOffset := make(map[int]int64, len(stats))
	oldest := -1
	for _, s := range stats {
		offset := int(anchor.Sub(model.DateOf(s.Date)).Hours() / 24)
		if offset < 0 || offset >= days {
			continue
		}
		byOffset[offset] += s.Impressions
		if offset > oldest {
			oldest = offset
		}
	}
	if oldest < 0 {
		return nil, 0
	}

	url := stats[0].URL
	out := make([]model.DailyStat, oldest+1)
	for i := range out {
		out[i] = model.DailyStat{URL: url, Date: anchor.AddDate(0, 0, -i), Impressions: byOffset[i]}
	}
	return out, len(byOffset)
}

// DropResult describes the latest day's impressions against the trailing mean.
type DropResult struct {
	Average float64
	Current float64
	Percent float64
}

// Drop computes the impression drop for stats ordered newest first. The
// trailing average covers every day except the newest. ok is false when
// there are fewer than minDays rows or the average is below minAvg.
func Drop(stats []model.DailyStat, minDays int, minAvg float64) (DropResult, bool) {
	if len(stats) < minDays || len(stats) < 2 {
		return DropResult{}, false
	}
	var sum float64
	for _, s := range stats[1:] {
		sum += float64(s.Impressions)
	}
	avg := sum / float64(len(stats)-1)
	if avg <= 0 || avg < minAvg {
		return DropResult{}, false
	}
	current := float64(stats[0].Impressions)
	return DropResult{
		Average: avg,
		Current: current,
		Percent: (avg - current) / avg * 100,
	}, true
}

// NewURLs flags URLs first seen within the new-URL window that have not
// been inspected recently.
func (d *Detector) NewURLs(ctx context.Context, business string) ([]model.Candidate, error) {
	pages, err := d.reader.NewURLs(ctx, business, d.daysAgo(d.cfg.NewURLWindowDays))
	if err != nil {
		return nil, eris.Wrap(err, "detect: new urls: load pages")
	}
	checked, err := d.recentlyChecked(ctx, business)
	if err != nil {
		return nil, eris.Wrap(err, "detect: new urls")
	}

	var out []model.Candidate
	for _, p := range pages {
		if _, seen := checked[p.URL]; seen {
			continue
		}
		priority := int(p.Impressions)
		if priority < d.cfg.NewURLPriorityFloor {
			priority = d.cfg.NewURLPriorityFloor
		}
		out = append(out, model.Candidate{
			URL:      p.URL,
			Reason:   model.ReasonNewURL,
			Priority: priority,
			Evidence: map[string]any{
				"first_seen":  p.FirstSeen.Format(time.DateOnly),
				"impressions": p.Impressions,
			},
		})
	}
	sortCandidates(out)
	d.log("new_url", business, len(pages), len(out))
	return out, nil
}

// FixVerification flags recently resolved issues whose URL has not been
// checked since the resolution day. One candidate is emitted per URL.
func (d *Detector) FixVerification(ctx context.Context, business string) ([]model.Candidate, error) {
	resolved, err := d.reader.ListRecentlyResolved(ctx, business, d.daysAgo(d.cfg.FixWindowDays))
	if err != nil {
		return nil, eris.Wrap(err, "detect: fix verification: load resolved issues")
	}

	seen := make(map[string]bool)
	var out []model.Candidate
	for _, rec := range resolved {
		if seen[rec.URL] || !NeedsVerification(rec) {
			continue
		}
		seen[rec.URL] = true
		out = append(out, model.Candidate{
			URL:      rec.URL,
			Reason:   model.ReasonFixVerification,
			Priority: d.cfg.FixPriority,
			Evidence: map[string]any{
				"issue_type":  string(rec.IssueType),
				"resolved_at": rec.ResolvedAt.Format(time.RFC3339),
			},
		})
	}
	sortCandidates(out)
	d.log("fix_verification", business, len(resolved), len(out))
	return out, nil
}

// NeedsVerification reports whether a resolved issue has not been checked
// after the day it was resolved.
func NeedsVerification(rec model.IssueRecord) bool {
	if rec.Status != model.IssueStatusResolved || rec.ResolvedAt == nil {
		return false
	}
	return !model.DateOf(rec.LastChecked).After(model.DateOf(*rec.ResolvedAt))
}

// Rotation flags the top pages by impressions that have not been inspected
// recently, so high-traffic pages get periodic checks without an anomaly.
func (d *Detector) Rotation(ctx context.Context, business string) ([]model.Candidate, error) {
	top, err := d.reader.TopPages(ctx, business, d.daysAgo(d.cfg.RotationWindowDays), d.cfg.RotationTopN)
	if err != nil {
		return nil, eris.Wrap(err, "detect: rotation: load top pages")
	}
	checked, err := d.recentlyChecked(ctx, business)
	if err != nil {
		return nil, eris.Wrap(err, "detect: rotation")
	}

	var out []model.Candidate
	for _, p := range top {
		if _, seen := checked[p.URL]; seen {
			continue
		}
		out = append(out, model.Candidate{
			URL:      p.URL,
			Reason:   model.ReasonRotation,
			Priority: int(math.Round(float64(p.Impressions) / d.cfg.RotationDivisor)),
			Evidence: map[string]any{
				"impressions": p.Impressions,
				"window_days": d.cfg.RotationWindowDays,
			},
		})
	}
	sortCandidates(out)
	d.log("rotation", business, len(top), len(out))
	return out, nil
}

func (d *Detector) recentlyChecked(ctx context.Context, business string) (map[string]time.Time, error) {
	checked, err := d.reader.ListRecentlyChecked(ctx, business, d.daysAgo(d.cfg.RecheckDays))
	return checked, eris.Wrap(err, "load recently checked")
}

func (d *Detector) log(detector, business string, scanned, flagged int) {
	zap.L().Debug("detector finished",
		zap.String("component", "detect"),
		zap.String("detector", detector),
		zap.String("business", business),
		zap.Int("scanned", scanned),
		zap.Int("flagged", flagged),
	)
}

// sortCandidates orders by descending priority, then URL for determinism.
func sortCandidates(c []model.Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Priority != c[j].Priority {
			return c[i].Priority > c[j].Priority
		}
		return c[i].URL < c[j].URL
	})
}
