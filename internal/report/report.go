// Package report renders issues, summaries and sync history for operators.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/seo-monitor/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat validates a --format flag value. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("report: unknown format %q (want table, json, yaml or xlsx)", s)
	}
}

var issueHeader = []string{"URL", "TYPE", "SEVERITY", "STATUS", "REASON", "FIRST_DETECTED", "LAST_CHECKED", "RESOLVED", "COVERAGE"}

func issueRow(r model.IssueRecord) []string {
	resolved := ""
	if r.ResolvedAt != nil {
		resolved = r.ResolvedAt.Format(time.DateOnly)
	}
	return []string{
		r.URL,
		string(r.IssueType),
		string(r.Severity),
		string(r.Status),
		string(r.DetectionReason),
		r.FirstDetected.Format(time.DateOnly),
		r.LastChecked.Format(time.DateOnly),
		resolved,
		r.Diagnostics.CoverageState,
	}
}

// WriteIssues renders issues in the given format.
func WriteIssues(w io.Writer, issues []model.IssueRecord, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, issues)
	case FormatYAML:
		return writeYAML(w, issues)
	case FormatXLSX:
		return writeIssuesXLSX(w, issues)
	case FormatTable, "":
		rows := make([][]string, len(issues))
		for i, r := range issues {
			rows[i] = issueRow(r)
		}
		return writeTable(w, issueHeader, rows)
	default:
		return eris.Errorf("report: unknown format %q", f)
	}
}

func writeIssuesXLSX(w io.Writer, issues []model.IssueRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Issues")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}
	addRow(sheet, issueHeader)
	for _, r := range issues {
		addRow(sheet, issueRow(r))
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

var syncHeader = []string{"STARTED", "STATUS", "PAGES", "DETECTED", "INSPECTED", "NEW", "RESOLVED", "API_CALLS", "ERRORS", "RATE_LIMITED", "DURATION", "ERROR"}

// WriteSyncLog renders sync log entries. XLSX is not supported here.
func WriteSyncLog(w io.Writer, entries []model.SyncLogEntry, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, entries)
	case FormatYAML:
		return writeYAML(w, entries)
	case FormatTable, "":
		p := message.NewPrinter(language.English)
		rows := make([][]string, len(entries))
		for i, e := range entries {
			rows[i] = []string{
				e.StartedAt.UTC().Format("2006-01-02 15:04"),
				string(e.Status),
				p.Sprintf("%d", e.PagesSynced),
				p.Sprintf("%d", e.AnomaliesDetected),
				p.Sprintf("%d", e.URLsInspected),
				p.Sprintf("%d", e.NewIssuesFound),
				p.Sprintf("%d", e.IssuesResolved),
				p.Sprintf("%d", e.APICallsUsed),
				p.Sprintf("%d", e.InspectErrors),
				fmt.Sprintf("%t", e.RateLimited),
				(time.Duration(e.DurationMS) * time.Millisecond).Round(time.Second).String(),
				truncate(e.ErrorMessage, 60),
			}
		}
		return writeTable(w, syncHeader, rows)
	default:
		return eris.Errorf("report: format %q not supported for sync log", f)
	}
}

// WriteSummary renders active/resolved counts as text with thousands
// separators, or as json/yaml.
func WriteSummary(w io.Writer, s *model.IssueSummary, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, s)
	case FormatYAML:
		return writeYAML(w, s)
	case FormatTable, "":
	default:
		return eris.Errorf("report: format %q not supported for summary", f)
	}

	p := message.NewPrinter(language.English)
	_, _ = p.Fprintf(w, "Business: %s\n", s.Business)
	_, _ = p.Fprintf(w, "Active issues:   %d (critical %d, warning %d)\n",
		s.Active, s.ActiveBySeverity[model.SeverityCritical], s.ActiveBySeverity[model.SeverityWarning])
	_, _ = p.Fprintf(w, "Resolved issues: %d (critical %d, warning %d)\n",
		s.Resolved, s.ResolvedBySeverity[model.SeverityCritical], s.ResolvedBySeverity[model.SeverityWarning])

	if len(s.ActiveByType) == 0 {
		return nil
	}
	types := make([]model.IssueType, 0, len(s.ActiveByType))
	for t := range s.ActiveByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if s.ActiveByType[types[i]] != s.ActiveByType[types[j]] {
			return s.ActiveByType[types[i]] > s.ActiveByType[types[j]]
		}
		return types[i] < types[j]
	})
	rows := make([][]string, len(types))
	for i, t := range types {
		rows[i] = []string{string(t), p.Sprintf("%d", s.ActiveByType[t])}
	}
	_, _ = fmt.Fprintln(w)
	return writeTable(w, []string{"ACTIVE_TYPE", "COUNT"}, rows)
}

func writeTable(out io.Writer, header []string, rows [][]string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, r := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	return eris.Wrap(w.Flush(), "report: flush table")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "report: encode json")
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "report: encode yaml")
	}
	return eris.Wrap(enc.Close(), "report: close yaml encoder")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
