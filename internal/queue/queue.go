// Package queue merges detector output into a single budgeted,
// prioritized list of URLs to inspect.
package queue

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/seo-monitor/internal/config"
	"github.com/sells-group/seo-monitor/internal/model"
)

// Detector produces anomaly candidates for a business.
type Detector interface {
	TrafficDrop(ctx context.Context, business string) ([]model.Candidate, error)
	FixVerification(ctx context.Context, business string) ([]model.Candidate, error)
	NewURLs(ctx context.Context, business string) ([]model.Candidate, error)
	Rotation(ctx context.Context, business string) ([]model.Candidate, error)
}

// Queue is the output of one build.
type Queue struct {
	Items []model.QueueItem `json:"items"`
	// ByReason counts items in the final queue.
	ByReason map[model.Reason]int `json:"by_reason"`
	// Detected counts candidates each detector produced before any truncation.
	Detected map[model.Reason]int `json:"detected"`
}

// Total returns the number of detected candidates across all detectors.
func (q *Queue) Total() int {
	n := 0
	for _, c := range q.Detected {
		n += c
	}
	return n
}

// Builder runs the detectors and applies the per-reason and total budgets.
type Builder struct {
	detector Detector
	budget   config.BudgetConfig
}

// NewBuilder creates a Builder. Zero budgets fall back to defaults.
func NewBuilder(d Detector, budget config.BudgetConfig) *Builder {
	if budget.Total <= 0 {
		budget.Total = 500
	}
	if budget.TrafficDrop <= 0 {
		budget.TrafficDrop = 200
	}
	if budget.FixVerification <= 0 {
		budget.FixVerification = 100
	}
	if budget.NewURL <= 0 {
		budget.NewURL = 100
	}
	if budget.Rotation <= 0 {
		budget.Rotation = 100
	}
	return &Builder{detector: d, budget: budget}
}

// Build runs all detectors and returns the merged queue. A positive
// budget overrides the configured total for this build. Any detector
// error fails the build.
func (b *Builder) Build(ctx context.Context, business string, budget int) (*Queue, error) {
	total := b.budget.Total
	if budget > 0 {
		total = budget
	}
	log := zap.L().With(
		zap.String("component", "queue"),
		zap.String("business", business),
	)

	detectors := []struct {
		reason model.Reason
		run    func(context.Context, string) ([]model.Candidate, error)
	}{
		{model.ReasonTrafficDrop, b.detector.TrafficDrop},
		{model.ReasonFixVerification, b.detector.FixVerification},
		{model.ReasonNewURL, b.detector.NewURLs},
		{model.ReasonRotation, b.detector.Rotation},
	}

	// Detectors only read, so they run concurrently; results stay in order.
	results := make([][]model.Candidate, len(detectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		g.Go(func() error {
			c, err := d.run(gctx, business)
			if err != nil {
				return eris.Wrapf(err, "queue: detector %s", d.reason)
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	q := &Queue{
		ByReason: make(map[model.Reason]int),
		Detected: make(map[model.Reason]int),
	}
	for i, d := range detectors {
		q.Detected[d.reason] = len(results[i])
	}

	// Sub-budgets apply in detector order; rotation gets what is left.
	used := 0
	lists := make([][]model.Candidate, len(detectors))
	for i, d := range detectors {
		limit := b.subBudget(d.reason, total, used)
		lists[i] = truncate(results[i], limit)
		used += len(lists[i])
	}

	q.Items = Merge(total, lists...)
	for _, it := range q.Items {
		q.ByReason[it.Reason]++
	}

	log.Info("inspection queue built",
		zap.Int("budget", total),
		zap.Int("detected", q.Total()),
		zap.Int("queued", len(q.Items)),
		zap.Int("traffic_drop", q.ByReason[model.ReasonTrafficDrop]),
		zap.Int("fix_verification", q.ByReason[model.ReasonFixVerification]),
		zap.Int("new_url", q.ByReason[model.ReasonNewURL]),
		zap.Int("rotation", q.ByReason[model.ReasonRotation]),
	)
	return q, nil
}

func (b *Builder) subBudget(reason model.Reason, total, used int) int {
	switch reason {
	case model.ReasonTrafficDrop:
		return b.budget.TrafficDrop
	case model.ReasonFixVerification:
		return b.budget.FixVerification
	case model.ReasonNewURL:
		return b.budget.NewURL
	default:
		return min(b.budget.Rotation, max(total-used, 0))
	}
}

func truncate(c []model.Candidate, n int) []model.Candidate {
	if len(c) > n {
		return c[:n]
	}
	return c
}

// Merge concatenates candidate lists, keeps one item per URL with the
// highest priority (ties keep the earlier list), stable-sorts by
// descending priority and truncates to budget.
func Merge(budget int, lists ...[]model.Candidate) []model.QueueItem {
	index := make(map[string]int)
	var items []model.QueueItem
	for _, list := range lists {
		for _, c := range list {
			if i, ok := index[c.URL]; ok {
				if c.Priority > items[i].Priority {
					items[i].Priority = c.Priority
					items[i].Reason = c.Reason
				}
				continue
			}
			index[c.URL] = len(items)
			items = append(items, model.QueueItem{URL: c.URL, Reason: c.Reason, Priority: c.Priority})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority > items[j].Priority
	})

	if budget >= 0 && len(items) > budget {
		items = items[:budget]
	}
	return items
}
