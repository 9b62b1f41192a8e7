package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/seo-monitor/internal/config"
)

// Scheduler is the subset of client.ScheduleClient used here.
type Scheduler interface {
	Create(ctx context.Context, options client.ScheduleOptions) (client.ScheduleHandle, error)
	GetHandle(ctx context.Context, scheduleID string) client.ScheduleHandle
}

// ScheduleID returns the schedule id for a business.
func ScheduleID(business string) string {
	return "seo-monitor-sync-" + business
}

// Dial connects to the Temporal frontend described by cfg.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    NewLogger(zap.L().With(zap.String("component", "temporal"))),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: dial %s", cfg.HostPort)
	}
	return c, nil
}

// CreateSchedule registers a recurring schedule starting SyncWorkflow on
// cron. An existing schedule for the business has its spec replaced.
// Overlapping runs are skipped.
func CreateSchedule(ctx context.Context, sc Scheduler, cfg config.TemporalConfig, in SyncInput) (string, error) {
	if in.Business == "" {
		return "", eris.New("schedule: business is required")
	}
	if cfg.Cron == "" {
		return "", eris.New("schedule: cron expression is required")
	}
	if in.Timeout <= 0 && cfg.TimeoutMin > 0 {
		in.Timeout = time.Duration(cfg.TimeoutMin) * time.Minute
	}

	id := ScheduleID(in.Business)
	spec := client.ScheduleSpec{CronExpressions: []string{cfg.Cron}}
	logger := zap.L().With(zap.String("component", "schedule"), zap.String("schedule_id", id))

	_, err := sc.Create(ctx, client.ScheduleOptions{
		ID:      id,
		Spec:    spec,
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:        "seo-monitor-sync-" + in.Business + "-run",
			Workflow:  SyncWorkflow,
			Args:      []interface{}{in},
			TaskQueue: cfg.TaskQueue,
		},
	})
	if err == nil {
		logger.Info("schedule created", zap.String("cron", cfg.Cron), zap.String("task_queue", cfg.TaskQueue))
		return id, nil
	}
	if !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return "", eris.Wrapf(err, "schedule: create %s", id)
	}

	err = sc.GetHandle(ctx, id).Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(u client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			s := u.Description.Schedule
			s.Spec = &spec
			return &client.ScheduleUpdate{Schedule: &s}, nil
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "schedule: update %s", id)
	}
	logger.Info("schedule updated", zap.String("cron", cfg.Cron))
	return id, nil
}

// NewWorker builds a worker with the sync workflow and activities
// registered on cfg.TaskQueue.
func NewWorker(c client.Client, cfg config.TemporalConfig, acts *Activities) worker.Worker {
	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(SyncWorkflow)
	w.RegisterActivity(acts)
	return w
}

// zapLogger adapts zap to the Temporal SDK logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger wraps l for use as a Temporal client logger.
func NewLogger(l *zap.Logger) log.Logger {
	return &zapLogger{s: l.Sugar()}
}

func (z *zapLogger) Debug(msg string, keyvals ...interface{}) { z.s.Debugw(msg, keyvals...) }
func (z *zapLogger) Info(msg string, keyvals ...interface{})  { z.s.Infow(msg, keyvals...) }
func (z *zapLogger) Warn(msg string, keyvals ...interface{})  { z.s.Warnw(msg, keyvals...) }
func (z *zapLogger) Error(msg string, keyvals ...interface{}) { z.s.Errorw(msg, keyvals...) }
