// Package schedule runs sync passes as Temporal workflows and registers
// the recurring schedule that starts them.
package schedule

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/seo-monitor/internal/model"
	"github.com/sells-group/seo-monitor/internal/orchestrator"
)

// DefaultTimeout bounds a single sync activity when the input sets none.
const DefaultTimeout = 60 * time.Minute

// SyncInput is the workflow argument. It must stay JSON-serializable.
type SyncInput struct {
	Business       string        `json:"business"`
	Site           string        `json:"site"`
	Budget         int           `json:"budget,omitempty"`
	SkipInspection bool          `json:"skip_inspection,omitempty"`
	SkipRefresh    bool          `json:"skip_refresh,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
}

// Runner executes one sync pass.
type Runner interface {
	Run(ctx context.Context, opts orchestrator.Options) (*orchestrator.Result, error)
}

// Activities holds the dependencies of the sync activity.
type Activities struct {
	runner Runner
}

// NewActivities creates the activity set registered on the worker.
func NewActivities(r Runner) *Activities {
	return &Activities{runner: r}
}

// RunSync performs one orchestrator pass. A failed pass is not retried:
// the sync log already holds its entry and the next scheduled run starts
// from fresh data.
func (a *Activities) RunSync(ctx context.Context, in SyncInput) (*model.SyncLogEntry, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("sync activity starting", "business", in.Business)

	res, err := a.runner.Run(ctx, orchestrator.Options{
		Business:       in.Business,
		Site:           in.Site,
		Budget:         in.Budget,
		SkipInspection: in.SkipInspection,
		SkipRefresh:    in.SkipRefresh,
	})
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "SyncFailed", err)
	}

	logger.Info("sync activity complete",
		"business", in.Business,
		"sync_id", res.Entry.ID,
		"urls_inspected", res.Entry.URLsInspected,
	)
	return res.Entry, nil
}

// SyncWorkflow runs a single sync pass as an activity.
func SyncWorkflow(ctx workflow.Context, in SyncInput) (*model.SyncLogEntry, error) {
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var a *Activities
	var entry model.SyncLogEntry
	if err := workflow.ExecuteActivity(ctx, a.RunSync, in).Get(ctx, &entry); err != nil {
		return nil, err
	}
	workflow.GetLogger(ctx).Info("sync workflow complete", "sync_id", entry.ID, "status", string(entry.Status))
	return &entry, nil
}
