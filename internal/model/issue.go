package model

import "time"

// IssueType identifies the indexing problem recorded for a URL.
type IssueType string

const (
	IssueNotFound          IssueType = "not_found_404"
	IssueSoft404           IssueType = "soft_404"
	IssueServerError       IssueType = "server_error"
	IssueBlockedRobots     IssueType = "blocked_robots"
	IssueBlockedNoindex    IssueType = "blocked_noindex"
	IssueCrawledNotIndexed IssueType = "crawled_not_indexed"
	IssueUnknown           IssueType = "unknown"
)

// AllIssueTypes returns every issue type in classification precedence order.
func AllIssueTypes() []IssueType {
	return []IssueType{
		IssueNotFound,
		IssueSoft404,
		IssueServerError,
		IssueBlockedRobots,
		IssueBlockedNoindex,
		IssueCrawledNotIndexed,
		IssueUnknown,
	}
}

// Valid reports whether t is a known issue type.
func (t IssueType) Valid() bool {
	for _, it := range AllIssueTypes() {
		if it == t {
			return true
		}
	}
	return false
}

// Severity is the operator-facing urgency of an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityCritical || s == SeverityWarning
}

// IssueStatus is the lifecycle state of an issue record.
type IssueStatus string

const (
	IssueStatusActive   IssueStatus = "active"
	IssueStatusResolved IssueStatus = "resolved"
)

// Valid reports whether s is a known issue status.
func (s IssueStatus) Valid() bool {
	return s == IssueStatusActive || s == IssueStatusResolved
}

// ResolutionType records how an issue came to be resolved.
type ResolutionType string

const (
	ResolutionNone         ResolutionType = ""
	ResolutionAutoVerified ResolutionType = "auto_verified"
	ResolutionManual       ResolutionType = "manual"
)

// Diagnostics holds the raw fields returned by the URL inspection API
// at the time an issue was last observed.
type Diagnostics struct {
	Verdict         string     `json:"verdict,omitempty" yaml:"verdict,omitempty"`
	CoverageState   string     `json:"coverage_state,omitempty" yaml:"coverage_state,omitempty"`
	PageFetchState  string     `json:"page_fetch_state,omitempty" yaml:"page_fetch_state,omitempty"`
	RobotsTxtState  string     `json:"robots_txt_state,omitempty" yaml:"robots_txt_state,omitempty"`
	IndexingState   string     `json:"indexing_state,omitempty" yaml:"indexing_state,omitempty"`
	GoogleCanonical string     `json:"google_canonical,omitempty" yaml:"google_canonical,omitempty"`
	LastCrawlTime   *time.Time `json:"last_crawl_time,omitempty" yaml:"last_crawl_time,omitempty"`
}

// IssueRecord is a durable indexing problem for one URL. It is unique
// per (Business, URL, IssueType) and never hard-deleted.
type IssueRecord struct {
	ID              string         `json:"id" yaml:"id"`
	Business        string         `json:"business" yaml:"business"`
	URL             string         `json:"url" yaml:"url"`
	IssueType       IssueType      `json:"issue_type" yaml:"issue_type"`
	Severity        Severity       `json:"severity" yaml:"severity"`
	Status          IssueStatus    `json:"status" yaml:"status"`
	FirstDetected   time.Time      `json:"first_detected" yaml:"first_detected"`
	LastChecked     time.Time      `json:"last_checked" yaml:"last_checked"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
	ResolutionType  ResolutionType `json:"resolution_type,omitempty" yaml:"resolution_type,omitempty"`
	DetectionReason Reason         `json:"detection_reason,omitempty" yaml:"detection_reason,omitempty"`
	Diagnostics     Diagnostics    `json:"diagnostics" yaml:"diagnostics"`
}

// IsActive reports whether the issue is still open.
func (r *IssueRecord) IsActive() bool {
	return r.Status == IssueStatusActive
}

// IssueSummary counts issues for one business.
type IssueSummary struct {
	Business           string            `json:"business" yaml:"business"`
	Active             int               `json:"active" yaml:"active"`
	Resolved           int               `json:"resolved" yaml:"resolved"`
	ActiveBySeverity   map[Severity]int  `json:"active_by_severity" yaml:"active_by_severity"`
	ResolvedBySeverity map[Severity]int  `json:"resolved_by_severity" yaml:"resolved_by_severity"`
	ActiveByType       map[IssueType]int `json:"active_by_type" yaml:"active_by_type"`
	ResolvedByType     map[IssueType]int `json:"resolved_by_type" yaml:"resolved_by_type"`
}

// NewIssueSummary returns a summary with initialized maps.
func NewIssueSummary(business string) *IssueSummary {
	return &IssueSummary{
		Business:           business,
		ActiveBySeverity:   make(map[Severity]int),
		ResolvedBySeverity: make(map[Severity]int),
		ActiveByType:       make(map[IssueType]int),
		ResolvedByType:     make(map[IssueType]int),
	}
}

// Add counts n issues with the given status, severity and type.
func (s *IssueSummary) Add(status IssueStatus, sev Severity, it IssueType, n int) {
	switch status {
	case IssueStatusActive:
		s.Active += n
		s.ActiveBySeverity[sev] += n
		s.ActiveByType[it] += n
	case IssueStatusResolved:
		s.Resolved += n
		s.ResolvedBySeverity[sev] += n
		s.ResolvedByType[it] += n
	}
}

// URLCheck records that a URL was inspected, whatever the outcome.
// Detectors use it to skip URLs inspected recently.
type URLCheck struct {
	Business  string    `json:"business"`
	URL       string    `json:"url"`
	CheckedAt time.Time `json:"checked_at"`
	Verdict   string    `json:"verdict,omitempty"`
	IssueType IssueType `json:"issue_type,omitempty"`
}
