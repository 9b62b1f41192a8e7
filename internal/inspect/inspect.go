// Package inspect calls the URL inspection API for each queued URL and
// reconciles the result with the stored issue records.
package inspect

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/seo-monitor/internal/config"
	"github.com/sells-group/seo-monitor/internal/model"
	"github.com/sells-group/seo-monitor/internal/resilience"
	"github.com/sells-group/seo-monitor/pkg/gsc"
)

const defaultDelay = 500 * time.Millisecond

// IssueWriter is the subset of the store the inspector writes to.
type IssueWriter interface {
	UpsertActive(ctx context.Context, rec *model.IssueRecord) (bool, error)
	FindActiveByURL(ctx context.Context, business, url string) ([]model.IssueRecord, error)
	Resolve(ctx context.Context, id string, at time.Time, resolution model.ResolutionType) error
	MarkVerified(ctx context.Context, business, url string, at time.Time) error
	RecordCheck(ctx context.Context, check model.URLCheck) error
}

// Inspector inspects URLs one at a time, paced by a rate limiter.
type Inspector struct {
	client       gsc.Client
	store        IssueWriter
	limiter      *rate.Limiter
	languageCode string
	now          func() time.Time
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithClock overrides the time source used for last_checked and resolved_at.
func WithClock(now func() time.Time) Option {
	return func(i *Inspector) { i.now = now }
}

// WithLanguageCode sets the language used for inspection result messages.
func WithLanguageCode(code string) Option {
	return func(i *Inspector) { i.languageCode = code }
}

// New creates an Inspector. Consecutive API calls are spaced at least
// cfg.DelayMs apart; the first call is not delayed.
func New(client gsc.Client, store IssueWriter, cfg config.InspectConfig, opts ...Option) *Inspector {
	delay := time.Duration(cfg.DelayMs) * time.Millisecond
	if cfg.DelayMs < 0 {
		delay = 0
	} else if cfg.DelayMs == 0 {
		delay = defaultDelay
	}

	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	i := &Inspector{
		client:  client,
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Run inspects items in order. A rate-limit refusal stops the pass and is
// reported through stats.RateLimited, not as an error. Other per-URL
// failures are counted and skipped. Context cancellation returns ctx.Err().
func (i *Inspector) Run(ctx context.Context, business, site string, items []model.QueueItem) (model.InspectStats, error) {
	log := zap.L().With(
		zap.String("component", "inspect"),
		zap.String("business", business),
	)
	stats := model.InspectStats{ByIssueType: make(map[model.IssueType]int)}

	for n, item := range items {
		if err := i.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, eris.Wrap(err, "inspect: rate limit wait")
		}

		stats.APICalls++
		res, err := i.client.InspectURL(ctx, gsc.InspectRequest{
			InspectionURL: item.URL,
			SiteURL:       site,
			LanguageCode:  i.languageCode,
		})
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if isRateLimited(err) {
				stats.RateLimited = true
				log.Warn("inspection api rate limited, stopping",
					zap.String("url", item.URL),
					zap.Int("inspected", stats.Inspected),
					zap.Int("remaining", len(items)-n),
				)
				break
			}
			stats.Errors++
			log.Warn("inspection failed", zap.String("url", item.URL), zap.Error(err))
			continue
		}
		stats.Inspected++

		if err := i.apply(ctx, business, item, res, &stats); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Errors++
			log.Warn("failed to persist inspection result", zap.String("url", item.URL), zap.Error(err))
		}
	}

	log.Info("inspection pass complete",
		zap.Int("queued", len(items)),
		zap.Int("inspected", stats.Inspected),
		zap.Int("new_issues", stats.NewIssues),
		zap.Int("refreshed", stats.Refreshed),
		zap.Int("resolved", stats.Resolved),
		zap.Int("errors", stats.Errors),
		zap.Int("api_calls", stats.APICalls),
		zap.Bool("rate_limited", stats.RateLimited),
	)
	return stats, nil
}

// apply persists one inspection result: open or refresh the classified
// issue, or resolve whatever was active when the URL came back clean.
func (i *Inspector) apply(ctx context.Context, business string, item model.QueueItem, res *gsc.InspectionResult, stats *model.InspectStats) error {
	now := i.now()
	issueType, severity, found := Classify(res)
	diag := diagnostics(res)

	check := model.URLCheck{
		Business:  business,
		URL:       item.URL,
		CheckedAt: now,
		Verdict:   diag.Verdict,
	}

	if found {
		check.IssueType = issueType
		rec := &model.IssueRecord{
			Business:        business,
			URL:             item.URL,
			IssueType:       issueType,
			Severity:        severity,
			LastChecked:     now,
			DetectionReason: item.Reason,
			Diagnostics:     diag,
		}
		created, err := i.store.UpsertActive(ctx, rec)
		if err != nil {
			return eris.Wrapf(err, "inspect: upsert %s", issueType)
		}
		stats.ByIssueType[issueType]++
		if created {
			stats.NewIssues++
			if severity == model.SeverityCritical {
				stats.NewCritical++
			}
		} else {
			stats.Refreshed++
		}
	} else {
		active, err := i.store.FindActiveByURL(ctx, business, item.URL)
		if err != nil {
			return eris.Wrap(err, "inspect: find active issues")
		}
		for _, rec := range active {
			if err := i.store.Resolve(ctx, rec.ID, now, model.ResolutionAutoVerified); err != nil {
				return eris.Wrapf(err, "inspect: resolve %s", rec.IssueType)
			}
			stats.Resolved++
		}
		if len(active) == 0 {
			if err := i.store.MarkVerified(ctx, business, item.URL, now); err != nil {
				return eris.Wrap(err, "inspect: mark verified")
			}
		}
	}

	return eris.Wrap(i.store.RecordCheck(ctx, check), "inspect: record check")
}

func isRateLimited(err error) bool {
	return errors.Is(err, gsc.ErrRateLimited) || resilience.IsQuota(err)
}
