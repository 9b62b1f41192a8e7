package gsc

import (
	"context"
	"net/url"

	"github.com/rotisserie/eris"
)

// MaxRowLimit is the largest page size the search analytics API accepts.
const MaxRowLimit = 25000

// SearchAnalyticsQuery is the body of a searchAnalytics/query request.
type SearchAnalyticsQuery struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	Type       string   `json:"type,omitempty"`
	RowLimit   int      `json:"rowLimit,omitempty"`
	StartRow   int      `json:"startRow,omitempty"`
	DataState  string   `json:"dataState,omitempty"`
}

// SearchAnalyticsRow holds metrics for one combination of dimension keys.
type SearchAnalyticsRow struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

// SearchAnalyticsResponse is one page of query results.
type SearchAnalyticsResponse struct {
	Rows                    []SearchAnalyticsRow `json:"rows"`
	ResponseAggregationType string               `json:"responseAggregationType,omitempty"`
}

func (c *httpClient) QuerySearchAnalytics(ctx context.Context, site string, q SearchAnalyticsQuery) (*SearchAnalyticsResponse, error) {
	if site == "" {
		return nil, eris.New("gsc: search analytics: site is required")
	}
	if q.RowLimit <= 0 || q.RowLimit > MaxRowLimit {
		q.RowLimit = MaxRowLimit
	}

	endpoint := c.webmastersURL + "/sites/" + url.PathEscape(site) + "/searchAnalytics/query"

	var resp SearchAnalyticsResponse
	if err := c.postJSONRetry(ctx, endpoint, q, &resp); err != nil {
		return nil, eris.Wrapf(err, "gsc: search analytics %s..%s", q.StartDate, q.EndDate)
	}
	return &resp, nil
}
