package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/seo-monitor/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring sync runs on Temporal",
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create or update the recurring sync schedule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cron, _ := cmd.Flags().GetString("cron"); cron != "" {
			cfg.Temporal.Cron = cron
		}
		if business, _ := cmd.Flags().GetString("business"); business != "" {
			cfg.Business = business
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		budget, _ := cmd.Flags().GetInt("budget")

		c, err := schedule.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := schedule.CreateSchedule(ctx, c.ScheduleClient(), cfg.Temporal, schedule.SyncInput{
			Business: cfg.Business,
			Site:     cfg.Site,
			Budget:   budget,
		})
		if err != nil {
			return err
		}
		fmt.Printf("schedule %s runs %q on task queue %s\n", id, cfg.Temporal.Cron, cfg.Temporal.TaskQueue)
		return nil
	},
}

var scheduleWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that executes sync workflows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client, err := initGSC(cfg.GSC, cfg.Ingest)
		if err != nil {
			return err
		}

		c, err := schedule.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		w := schedule.NewWorker(c, cfg.Temporal, schedule.NewActivities(newOrchestrator(st, client)))
		zap.L().Info("temporal worker starting",
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.String("namespace", cfg.Temporal.Namespace),
		)
		return eris.Wrap(w.Run(worker.InterruptCh()), "schedule worker")
	},
}

func init() {
	scheduleCreateCmd.Flags().String("cron", "", "cron expression (default from config, e.g. \"0 6 * * *\")")
	scheduleCreateCmd.Flags().String("business", "", "business identifier (default from config)")
	scheduleCreateCmd.Flags().Int("budget", 0, "override the total inspection budget for scheduled runs")

	scheduleCmd.AddCommand(scheduleCreateCmd)
	scheduleCmd.AddCommand(scheduleWorkerCmd)
	rootCmd.AddCommand(scheduleCmd)
}
