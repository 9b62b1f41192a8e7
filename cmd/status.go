package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/seo-monitor/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync run history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		business := mustString(cmd, "business")
		if business == "" {
			business = cfg.Business
		}
		if business == "" {
			return eris.New("status: --business is required")
		}
		format, err := report.ParseFormat(mustString(cmd, "format"))
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListSyncLog(ctx, business, limit)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No sync runs recorded.")
			return nil
		}
		return report.WriteSyncLog(os.Stdout, entries, format)
	},
}

func init() {
	statusCmd.Flags().String("business", "", "business identifier (default from config)")
	statusCmd.Flags().Int("limit", 20, "max number of runs to display")
	statusCmd.Flags().String("format", "table", "output format (table, json, yaml)")
	rootCmd.AddCommand(statusCmd)
}
