// Package orchestrator runs one monitoring pass: refresh analytics, build
// the inspection queue, inspect, and log the outcome.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/seo-monitor/internal/model"
	"github.com/sells-group/seo-monitor/internal/queue"
)

// Stage names, in execution order.
const (
	StageRefresh = "refresh_analytics"
	StageQueue   = "build_queue"
	StageInspect = "inspect"
	StageLog     = "log"
)

// SyncLogWriter records run outcomes.
type SyncLogWriter interface {
	InsertSyncLog(ctx context.Context, e *model.SyncLogEntry) error
}

// Refresher loads fresh daily stats before detection.
type Refresher interface {
	Refresh(ctx context.Context, business, site string) (int, error)
}

// QueueBuilder detects anomalies and produces the inspection queue.
type QueueBuilder interface {
	Build(ctx context.Context, business string, budget int) (*queue.Queue, error)
}

// Inspector inspects queued URLs.
type Inspector interface {
	Run(ctx context.Context, business, site string, items []model.QueueItem) (model.InspectStats, error)
}

// Options control a single run.
type Options struct {
	Business       string
	Site           string
	Budget         int
	SkipInspection bool
	SkipRefresh    bool
}

// Result is what a run produced. Entry is always set.
type Result struct {
	Entry   *model.SyncLogEntry
	Queue   *queue.Queue
	Inspect model.InspectStats
}

// Hook runs after the sync log entry is written. Hook errors are logged
// and never change the run outcome.
type Hook func(ctx context.Context, res *Result) error

// Orchestrator sequences the stages of a run.
type Orchestrator struct {
	store     SyncLogWriter
	refresher Refresher
	builder   QueueBuilder
	inspector Inspector
	hooks     []Hook
	now       func() time.Time
}

// New creates an Orchestrator. refresher and inspector may be nil, in
// which case their stages are skipped.
func New(st SyncLogWriter, refresher Refresher, builder QueueBuilder, inspector Inspector, hooks ...Hook) *Orchestrator {
	return &Orchestrator{
		store:     st,
		refresher: refresher,
		builder:   builder,
		inspector: inspector,
		hooks:     hooks,
		now:       time.Now,
	}
}

// WithClock overrides the time source used for the sync date and durations.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run executes one pass. Exactly one sync log entry is written whatever
// happens, including a panic in a stage. The returned error is the
// stage failure, if any.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (res *Result, err error) {
	if opts.Business == "" {
		return nil, eris.New("orchestrator: business is required")
	}

	start := o.now()
	res = &Result{Entry: &model.SyncLogEntry{
		ID:                uuid.New().String(),
		Business:          opts.Business,
		SyncDate:          model.DateOf(start),
		StartedAt:         start,
		AnomaliesByReason: make(map[model.Reason]int),
	}}
	log := zap.L().With(
		zap.String("component", "orchestrator"),
		zap.String("business", opts.Business),
		zap.String("sync_id", res.Entry.ID),
	)
	log.Info("sync starting",
		zap.Int("budget", opts.Budget),
		zap.Bool("skip_refresh", opts.SkipRefresh),
		zap.Bool("skip_inspection", opts.SkipInspection),
	)

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("orchestrator: panic: %v", r)
			log.Error("sync panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		if logErr := o.finish(ctx, res, start, err, log); logErr != nil && err == nil {
			err = logErr
		}
	}()

	err = o.stages(ctx, opts, res, log)
	return res, err
}

func (o *Orchestrator) stages(ctx context.Context, opts Options, res *Result, log *zap.Logger) error {
	entry := res.Entry

	track := func(stage string, fn func() error) error {
		t := o.now()
		stageErr := fn()
		fields := []zap.Field{zap.String("stage", stage), zap.Int64("duration_ms", o.now().Sub(t).Milliseconds())}
		if stageErr != nil {
			log.Error("stage failed", append(fields, zap.Error(stageErr))...)
		} else {
			log.Info("stage complete", fields...)
		}
		return stageErr
	}

	// Refresh failures fall back to whatever stats are already stored.
	if !opts.SkipRefresh && o.refresher != nil {
		_ = track(StageRefresh, func() error {
			pages, refreshErr := o.refresher.Refresh(ctx, opts.Business, opts.Site)
			entry.PagesSynced = pages
			return refreshErr
		})
	}

	if err := track(StageQueue, func() error {
		q, buildErr := o.builder.Build(ctx, opts.Business, opts.Budget)
		if buildErr != nil {
			return buildErr
		}
		res.Queue = q
		entry.AnomaliesDetected = q.Total()
		for reason, n := range q.Detected {
			entry.AnomaliesByReason[reason] = n
		}
		return nil
	}); err != nil {
		return eris.Wrap(err, "orchestrator: build queue")
	}

	if opts.SkipInspection || o.inspector == nil {
		entry.SkippedInspection = true
		log.Info("inspection skipped", zap.Int("queued", len(res.Queue.Items)))
		return nil
	}

	return track(StageInspect, func() error {
		stats, inspErr := o.inspector.Run(ctx, opts.Business, opts.Site, res.Queue.Items)
		res.Inspect = stats
		entry.URLsInspected = stats.Inspected
		entry.NewIssuesFound = stats.NewIssues
		entry.IssuesResolved = stats.Resolved
		entry.APICallsUsed = stats.APICalls
		entry.InspectErrors = stats.Errors
		entry.RateLimited = stats.RateLimited
		return eris.Wrap(inspErr, "orchestrator: inspect")
	})
}

// finish stamps the outcome, writes the sync log entry and runs hooks.
func (o *Orchestrator) finish(ctx context.Context, res *Result, start time.Time, runErr error, log *zap.Logger) error {
	entry := res.Entry
	entry.DurationMS = o.now().Sub(start).Milliseconds()
	entry.Status = model.SyncStatusCompleted
	if runErr != nil {
		entry.Status = model.SyncStatusFailed
		entry.ErrorMessage = runErr.Error()
	}

	// The entry is written even when the run was cancelled.
	logCtx := context.WithoutCancel(ctx)
	if err := o.store.InsertSyncLog(logCtx, entry); err != nil {
		log.Error("failed to write sync log", zap.String("stage", StageLog), zap.Error(err))
		return eris.Wrap(err, "orchestrator: write sync log")
	}

	log.Info("sync finished",
		zap.String("status", string(entry.Status)),
		zap.Int("pages_synced", entry.PagesSynced),
		zap.Int("anomalies", entry.AnomaliesDetected),
		zap.Int("inspected", entry.URLsInspected),
		zap.Int("new_issues", entry.NewIssuesFound),
		zap.Int("resolved", entry.IssuesResolved),
		zap.Int("api_calls", entry.APICallsUsed),
		zap.Bool("rate_limited", entry.RateLimited),
		zap.Int64("duration_ms", entry.DurationMS),
	)

	for i, h := range o.hooks {
		if err := runHook(logCtx, h, res); err != nil {
			log.Warn("post-run hook failed", zap.Int("hook", i), zap.Error(err))
		}
	}
	return nil
}

func runHook(ctx context.Context, h Hook, res *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("orchestrator: hook panic: %v", r)
		}
	}()
	return h(ctx, res)
}
