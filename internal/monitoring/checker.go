package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/seo-monitor/internal/config"
)

// Checker runs periodic alert checks over the sync log in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	business  string

	// sent remembers alerts already delivered for a given latest run so a
	// failed run does not page on every tick.
	sent map[string]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, business string, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		business:  business,
		sent:      make(map[string]bool),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"), zap.String("business", c.business))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_runs", c.cfg.LookbackRuns),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.business, c.cfg.LookbackRuns)
	if err != nil {
		log.Error("monitoring: failed to collect sync history", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	var fresh []Alert
	for _, a := range alerts {
		key := string(a.Type)
		if snap.Latest != nil {
			key += ":" + snap.Latest.ID
		}
		if c.sent[key] {
			continue
		}
		c.sent[key] = true
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return len(fresh)
}
