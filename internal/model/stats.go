package model

import "time"

// DailyStat is one day of search traffic for a URL. Rows are written by
// the analytics ingest job and are immutable per (Business, URL, Date).
type DailyStat struct {
	Business    string    `json:"business"`
	URL         string    `json:"url"`
	Date        time.Time `json:"date"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Position    float64   `json:"position,omitempty"`
	CTR         float64   `json:"ctr,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
}

// PageImpressions is a URL with an aggregated impression count.
type PageImpressions struct {
	URL         string    `json:"url"`
	Impressions int64     `json:"impressions"`
	FirstSeen   time.Time `json:"first_seen,omitempty"`
}

// Reason explains why a URL was queued for inspection.
type Reason string

const (
	ReasonTrafficDrop     Reason = "traffic_drop"
	ReasonNewURL          Reason = "new_url"
	ReasonFixVerification Reason = "fix_verification"
	ReasonRotation        Reason = "rotation"
)

// AllReasons returns the reasons in queue-building order.
func AllReasons() []Reason {
	return []Reason{
		ReasonTrafficDrop,
		ReasonFixVerification,
		ReasonNewURL,
		ReasonRotation,
	}
}

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	for _, v := range AllReasons() {
		if v == r {
			return true
		}
	}
	return false
}

// Candidate is a URL flagged by a detector. It is produced fresh on each
// detection pass and never persisted.
type Candidate struct {
	URL      string         `json:"url"`
	Reason   Reason         `json:"reason"`
	Priority int            `json:"priority"`
	Evidence map[string]any `json:"evidence,omitempty"`
}

// QueueItem is one entry of the final inspection queue.
type QueueItem struct {
	URL      string `json:"url"`
	Reason   Reason `json:"reason"`
	Priority int    `json:"priority"`
}

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
