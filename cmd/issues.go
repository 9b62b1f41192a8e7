package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/seo-monitor/internal/model"
	"github.com/sells-group/seo-monitor/internal/report"
	"github.com/sells-group/seo-monitor/internal/store"
)

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List and export tracked indexing issues",
}

// -- issues list --

var issuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIssues(cmd, os.Stdout)
	},
}

// -- issues export --

var issuesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues to a file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("output")
		if path == "" {
			return eris.New("issues export: --output is required")
		}
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "issues export: create file")
		}
		if err := runIssues(cmd, f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "issues export: close file")
		}
		zap.L().Info("issues exported", zap.String("path", path))
		return nil
	},
}

func runIssues(cmd *cobra.Command, out io.Writer) error {
	ctx := cmd.Context()

	filter, err := issueFilterFromFlags(cmd)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(mustString(cmd, "format"))
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	issues, err := st.ListIssues(ctx, filter)
	if err != nil {
		return eris.Wrap(err, "issues list")
	}
	if len(issues) == 0 && format == report.FormatTable {
		_, _ = io.WriteString(os.Stderr, "No issues found.\n")
		return nil
	}
	return report.WriteIssues(out, issues, format)
}

func issueFilterFromFlags(cmd *cobra.Command) (store.IssueFilter, error) {
	business := mustString(cmd, "business")
	if business == "" {
		business = cfg.Business
	}
	if business == "" {
		return store.IssueFilter{}, eris.New("issues: --business is required")
	}
	limit, _ := cmd.Flags().GetInt("limit")

	f := store.IssueFilter{
		Business:  business,
		Status:    model.IssueStatus(mustString(cmd, "status")),
		Severity:  model.Severity(mustString(cmd, "severity")),
		IssueType: model.IssueType(mustString(cmd, "type")),
		Limit:     limit,
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, eris.Errorf("issues: invalid status %q", f.Status)
	}
	if f.Severity != "" && !f.Severity.Valid() {
		return f, eris.Errorf("issues: invalid severity %q", f.Severity)
	}
	if f.IssueType != "" && !f.IssueType.Valid() {
		return f, eris.Errorf("issues: invalid type %q", f.IssueType)
	}
	return f, nil
}

func init() {
	for _, c := range []*cobra.Command{issuesListCmd, issuesExportCmd} {
		c.Flags().String("business", "", "business identifier (default from config)")
		c.Flags().String("status", "", "filter by status (active, resolved)")
		c.Flags().String("severity", "", "filter by severity (critical, warning)")
		c.Flags().String("type", "", "filter by issue type (not_found_404, soft_404, ...)")
		c.Flags().Int("limit", 100, "max number of issues")
	}
	issuesListCmd.Flags().String("format", "table", "output format (table, json, yaml, xlsx)")
	issuesExportCmd.Flags().String("format", "xlsx", "output format (table, json, yaml, xlsx)")
	issuesExportCmd.Flags().StringP("output", "o", "", "output file path")

	issuesCmd.AddCommand(issuesListCmd)
	issuesCmd.AddCommand(issuesExportCmd)
	rootCmd.AddCommand(issuesCmd)
}
