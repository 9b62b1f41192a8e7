package inspect

import (
	"strings"

	"github.com/sells-group/seo-monitor/internal/model"
	"github.com/sells-group/seo-monitor/pkg/gsc"
)

// rule is one row of the classification table.
type rule struct {
	issue    model.IssueType
	severity model.Severity
	match    func(r *gsc.IndexStatusResult) bool
}

// rules are evaluated in order; the first match wins, so a 404 takes
// precedence over any robots or indexing signal on the same response.
var rules = []rule{
	{model.IssueNotFound, model.SeverityCritical, func(r *gsc.IndexStatusResult) bool {
		return r.PageFetchState == gsc.FetchNotFound || coverageHas(r, "not found (404)")
	}},
	{model.IssueSoft404, model.SeverityCritical, func(r *gsc.IndexStatusResult) bool {
		return r.PageFetchState == gsc.FetchSoft404 || coverageHas(r, "soft 404")
	}},
	{model.IssueServerError, model.SeverityCritical, func(r *gsc.IndexStatusResult) bool {
		return r.PageFetchState == gsc.FetchServerError || coverageHas(r, "server error")
	}},
	{model.IssueBlockedRobots, model.SeverityWarning, func(r *gsc.IndexStatusResult) bool {
		return r.RobotsTxtState == gsc.RobotsDisallowed ||
			r.PageFetchState == gsc.FetchBlockedRobotsTxt ||
			r.IndexingState == gsc.IndexingBlockedByRobotsTxt
	}},
	{model.IssueBlockedNoindex, model.SeverityWarning, func(r *gsc.IndexStatusResult) bool {
		return r.IndexingState == gsc.IndexingBlockedByMetaTag ||
			r.IndexingState == gsc.IndexingBlockedByHTTPHeader ||
			coverageHas(r, "noindex")
	}},
	{model.IssueCrawledNotIndexed, model.SeverityWarning, func(r *gsc.IndexStatusResult) bool {
		return coverageHas(r, "crawled") && coverageHas(r, "not indexed")
	}},
}

// Classify maps an inspection result to an issue type and severity. ok is
// false when the URL inspected clean. Results that match no rule and do not
// carry a passing or neutral verdict are recorded as unknown warnings.
func Classify(res *gsc.InspectionResult) (issue model.IssueType, severity model.Severity, ok bool) {
	if res == nil {
		return model.IssueUnknown, model.SeverityWarning, true
	}
	r := &res.IndexStatusResult
	for _, rl := range rules {
		if rl.match(r) {
			return rl.issue, rl.severity, true
		}
	}
	switch r.Verdict {
	case gsc.VerdictPass, gsc.VerdictNeutral:
		return "", "", false
	}
	return model.IssueUnknown, model.SeverityWarning, true
}

func coverageHas(r *gsc.IndexStatusResult, s string) bool {
	return strings.Contains(strings.ToLower(r.CoverageState), s)
}

// diagnostics copies the raw API fields stored on an issue record.
func diagnostics(res *gsc.InspectionResult) model.Diagnostics {
	if res == nil {
		return model.Diagnostics{}
	}
	r := res.IndexStatusResult
	return model.Diagnostics{
		Verdict:         r.Verdict,
		CoverageState:   r.CoverageState,
		PageFetchState:  r.PageFetchState,
		RobotsTxtState:  r.RobotsTxtState,
		IndexingState:   r.IndexingState,
		GoogleCanonical: r.GoogleCanonical,
		LastCrawlTime:   r.LastCrawlTime,
	}
}
