package gsc

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Verdict values returned in IndexStatusResult.Verdict.
const (
	VerdictPass        = "PASS"
	VerdictPartial     = "PARTIAL"
	VerdictFail        = "FAIL"
	VerdictNeutral     = "NEUTRAL"
	VerdictUnspecified = "VERDICT_UNSPECIFIED"
)

// PageFetchState values.
const (
	FetchSuccessful       = "SUCCESSFUL"
	FetchSoft404          = "SOFT_404"
	FetchBlockedRobotsTxt = "BLOCKED_ROBOTS_TXT"
	FetchNotFound         = "NOT_FOUND"
	FetchAccessDenied     = "ACCESS_DENIED"
	FetchServerError      = "SERVER_ERROR"
	FetchRedirectError    = "REDIRECT_ERROR"
	FetchAccessForbidden  = "ACCESS_FORBIDDEN"
	FetchBlocked4xx       = "BLOCKED_4XX"
	FetchInternalCrawlErr = "INTERNAL_CRAWL_ERROR"
	FetchInvalidURL       = "INVALID_URL"
	FetchStateUnspecified = "PAGE_FETCH_STATE_UNSPECIFIED"
)

// RobotsTxtState values.
const (
	RobotsAllowed    = "ALLOWED"
	RobotsDisallowed = "DISALLOWED"
)

// IndexingState values.
const (
	IndexingAllowed             = "INDEXING_ALLOWED"
	IndexingBlockedByMetaTag    = "BLOCKED_BY_META_TAG"
	IndexingBlockedByHTTPHeader = "BLOCKED_BY_HTTP_HEADER"
	IndexingBlockedByRobotsTxt  = "BLOCKED_BY_ROBOTS_TXT"
)

// InspectRequest identifies the URL to inspect within a verified property.
type InspectRequest struct {
	InspectionURL string `json:"inspectionUrl"`
	SiteURL       string `json:"siteUrl"`
	LanguageCode  string `json:"languageCode,omitempty"`
}

// InspectResponse is the raw envelope of urlInspection/index:inspect.
type InspectResponse struct {
	InspectionResult InspectionResult `json:"inspectionResult"`
}

// InspectionResult is the diagnostic result for one URL.
type InspectionResult struct {
	InspectionResultLink string            `json:"inspectionResultLink,omitempty"`
	IndexStatusResult    IndexStatusResult `json:"indexStatusResult"`
}

// IndexStatusResult holds the coverage and crawl states for a URL.
type IndexStatusResult struct {
	Verdict         string     `json:"verdict"`
	CoverageState   string     `json:"coverageState"`
	RobotsTxtState  string     `json:"robotsTxtState"`
	IndexingState   string     `json:"indexingState"`
	PageFetchState  string     `json:"pageFetchState"`
	LastCrawlTime   *time.Time `json:"lastCrawlTime,omitempty"`
	GoogleCanonical string     `json:"googleCanonical,omitempty"`
	UserCanonical   string     `json:"userCanonical,omitempty"`
	CrawledAs       string     `json:"crawledAs,omitempty"`
}

func (c *httpClient) InspectURL(ctx context.Context, req InspectRequest) (*InspectionResult, error) {
	if req.InspectionURL == "" || req.SiteURL == "" {
		return nil, eris.New("gsc: inspect: inspectionUrl and siteUrl are required")
	}

	var resp InspectResponse
	if err := c.postJSON(ctx, c.inspectURL+"/urlInspection/index:inspect", req, &resp); err != nil {
		return nil, eris.Wrapf(err, "gsc: inspect %s", req.InspectionURL)
	}
	return &resp.InspectionResult, nil
}
