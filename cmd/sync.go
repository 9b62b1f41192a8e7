package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/seo-monitor/internal/detect"
	"github.com/sells-group/seo-monitor/internal/ingest"
	"github.com/sells-group/seo-monitor/internal/inspect"
	"github.com/sells-group/seo-monitor/internal/metrics"
	"github.com/sells-group/seo-monitor/internal/model"
	"github.com/sells-group/seo-monitor/internal/monitoring"
	"github.com/sells-group/seo-monitor/internal/orchestrator"
	"github.com/sells-group/seo-monitor/internal/queue"
	"github.com/sells-group/seo-monitor/internal/report"
	"github.com/sells-group/seo-monitor/internal/store"
	"github.com/sells-group/seo-monitor/pkg/gsc"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one monitoring pass",
	Long:  "Refreshes analytics, builds the prioritized inspection queue within budget, inspects it, and records the outcome in the sync log. Exits non-zero when the run fails.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		business, _ := cmd.Flags().GetString("business")
		if business != "" {
			cfg.Business = business
		}
		if site, _ := cmd.Flags().GetString("site"); site != "" {
			cfg.Site = site
		}
		format, err := report.ParseFormat(mustString(cmd, "format"))
		if err != nil {
			return err
		}

		if summary, _ := cmd.Flags().GetBool("summary"); summary {
			if cfg.Business == "" {
				return eris.New("sync: --business is required")
			}
			return writeSummary(ctx, os.Stdout, cfg.Business, format)
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		opts := orchestrator.Options{Business: cfg.Business, Site: cfg.Site}
		opts.Budget, _ = cmd.Flags().GetInt("budget")
		opts.SkipInspection, _ = cmd.Flags().GetBool("skip-inspection")
		opts.SkipRefresh, _ = cmd.Flags().GetBool("skip-refresh")
		opts.SkipInspection = opts.SkipInspection || cfg.Inspect.SkipInspection
		opts.SkipRefresh = opts.SkipRefresh || cfg.Ingest.SkipRefresh
		if cfg.Site == "" && !(opts.SkipInspection && opts.SkipRefresh) {
			return eris.New("sync: site is required (SEOMON_SITE)")
		}

		client, err := syncClient(opts)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, runErr := newOrchestrator(st, client).Run(ctx, opts)
		if res != nil && res.Entry != nil {
			if err := report.WriteSyncLog(os.Stdout, []model.SyncLogEntry{*res.Entry}, format); err != nil {
				return err
			}
		}
		return runErr
	},
}

// writeSummary prints issue counts for business. The store is opened
// without migrating it.
func writeSummary(ctx context.Context, w io.Writer, business string, format report.Format) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	s, err := st.Summary(ctx, business)
	if err != nil {
		return eris.Wrap(err, "sync summary")
	}
	return report.WriteSummary(w, s, format)
}

// syncClient builds the Search Console client. It returns nil when both
// stages that call the API are skipped, so no credentials are needed.
func syncClient(opts orchestrator.Options) (gsc.Client, error) {
	if opts.SkipInspection && opts.SkipRefresh {
		return nil, nil
	}
	return initGSC(cfg.GSC, cfg.Ingest)
}

// newOrchestrator wires the sync stages against st and client. A nil
// client leaves out the refresh and inspection stages.
func newOrchestrator(st store.Store, client gsc.Client) *orchestrator.Orchestrator {
	var (
		refresher orchestrator.Refresher
		inspector orchestrator.Inspector
	)
	if client != nil {
		refresher = ingest.NewRefresher(client, st, cfg.Ingest)
		inspector = inspect.New(client, st, cfg.Inspect, inspect.WithLanguageCode(cfg.GSC.LanguageCode))
	}
	return orchestrator.New(
		st,
		refresher,
		queue.NewBuilder(detect.New(st, cfg.Detect), cfg.Budget),
		inspector,
		syncHooks()...,
	)
}

// syncHooks record metrics and send alerts after each run.
func syncHooks() []orchestrator.Hook {
	alerter := monitoring.NewAlerter(cfg.Monitoring)
	return []orchestrator.Hook{
		func(ctx context.Context, res *orchestrator.Result) error {
			metrics.RecordSync(res.Entry)
			return metrics.Push(ctx, cfg.Metrics, res.Entry)
		},
		func(ctx context.Context, res *orchestrator.Result) error {
			return alerter.AfterRun(ctx, res.Entry, res.Inspect.NewCritical)
		},
	}
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func init() {
	syncCmd.Flags().String("business", "", "business identifier (default from config)")
	syncCmd.Flags().String("site", "", "Search Console property, e.g. sc-domain:example.com (default from config)")
	syncCmd.Flags().Int("budget", 0, "override the total inspection budget for this run")
	syncCmd.Flags().Bool("skip-inspection", false, "detect and queue only, make no inspection calls")
	syncCmd.Flags().Bool("skip-refresh", false, "skip the analytics refresh and detect on stored data")
	syncCmd.Flags().Bool("summary", false, "print active/resolved issue counts without syncing")
	syncCmd.Flags().String("format", "table", "output format (table, json, yaml)")
	rootCmd.AddCommand(syncCmd)
}
