package detect

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/seo-monitor/internal/config"
	"github.com/sells-group/seo-monitor/internal/model"
	"github.com/sells-group/seo-monitor/internal/store"
)

var today = time.Date(2024, 1, 5, 14, 0, 0, 0, time.UTC)

func clock() time.Time { return today }

// fakeReader implements Reader for testing.
type fakeReader struct {
	stats    map[string][]model.DailyStat
	newURLs  []model.PageImpressions
	top      []model.PageImpressions
	checked  map[string]time.Time
	resolved []model.IssueRecord
	err      error

	statsSince   time.Time
	topLimit     int
	checkedSince time.Time
}

func (f *fakeReader) StatsForAllURLs(_ context.Context, _ string, since time.Time) (map[string][]model.DailyStat, error) {
	f.statsSince = since
	return f.stats, f.err
}

func (f *fakeReader) NewURLs(_ context.Context, _ string, _ time.Time) ([]model.PageImpressions, error) {
	return f.newURLs, f.err
}

func (f *fakeReader) TopPages(_ context.Context, _ string, _ time.Time, limit int) ([]model.PageImpressions, error) {
	f.topLimit = limit
	return f.top, f.err
}

func (f *fakeReader) ListRecentlyChecked(_ context.Context, _ string, since time.Time) (map[string]time.Time, error) {
	f.checkedSince = since
	return f.checked, nil
}

func (f *fakeReader) ListRecentlyResolved(_ context.Context, _ string, _ time.Time) ([]model.IssueRecord, error) {
	return f.resolved, f.err
}

// series builds newest-first stats from a current value and trailing history.
func series(url string, current int64, history ...int64) []model.DailyStat {
	out := []model.DailyStat{{URL: url, Date: model.DateOf(today), Impressions: current}}
	for i, h := range history {
		out = append(out, model.DailyStat{URL: url, Date: model.DateOf(today).AddDate(0, 0, -(i + 1)), Impressions: h})
	}
	return out
}

// endingOn builds newest-first stats whose newest row is end.
func endingOn(url string, end time.Time, values ...int64) []model.DailyStat {
	out := make([]model.DailyStat, len(values))
	for i, v := range values {
		out[i] = model.DailyStat{URL: url, Date: model.DateOf(end).AddDate(0, 0, -i), Impressions: v}
	}
	return out
}

func newDetector(r Reader) *Detector {
	return New(r, config.DetectConfig{}).WithClock(clock)
}

func TestTrafficDrop_Scenario(t *testing.T) {
	r := &fakeReader{stats: map[string][]model.DailyStat{
		"https://acme.com/a": series("https://acme.com/a", 20, 100, 100, 100, 100, 100, 100, 100),
		"https://acme.com/b": series("https://acme.com/b", 0, 5, 5, 5, 5, 5, 5, 5),
	}}

	got, err := newDetector(r).TrafficDrop(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://acme.com/a", got[0].URL)
	assert.Equal(t, model.ReasonTrafficDrop, got[0].Reason)
	assert.Equal(t, 80, got[0].Priority)
	assert.InDelta(t, 100, got[0].Evidence["avg7d"], 0.001)
	assert.Equal(t, model.DateOf(today).AddDate(0, 0, -16), r.statsSince)
}

func TestTrafficDrop_BoundaryIncluded(t *testing.T) {
	r := &fakeReader{stats: map[string][]model.DailyStat{
		"https://acme.com/exact": series("https://acme.com/exact", 50, 100, 100, 100),
		"https://acme.com/below": series("https://acme.com/below", 51, 100, 100, 100),
	}}

	got, err := newDetector(r).TrafficDrop(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://acme.com/exact", got[0].URL)
	assert.Equal(t, 50, got[0].Priority)
}

func TestTrafficDrop_Guards(t *testing.T) {
	r := &fakeReader{stats: map[string][]model.DailyStat{
		"https://acme.com/short": series("https://acme.com/short", 0, 100),
		"https://acme.com/zero":  series("https://acme.com/zero", 0, 0, 0, 0),
		"https://acme.com/up":    series("https://acme.com/up", 500, 100, 100, 100),
	}}

	got, err := newDetector(r).TrafficDrop(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTrafficDrop_UsesOnlyHistoryWindow(t *testing.T) {
	// Ten days of history; only the newest eight count, so the old spike
	// at the tail does not inflate the average.
	r := &fakeReader{stats: map[string][]model.DailyStat{
		"https://acme.com/a": series("https://acme.com/a", 40, 100, 100, 100, 100, 100, 100, 100, 10000, 10000),
	}}

	got, err := newDetector(r).TrafficDrop(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 60, got[0].Priority)
	assert.Equal(t, 8, got[0].Evidence["days"])
}

func TestTrafficDrop_PageMissingFromFeed(t *testing.T) {
	// A page with zero impressions has no rows at all, so its last four
	// days read as zero against the business's latest data day.
	r := &fakeReader{stats: map[string][]model.DailyStat{
		"https://acme.com/a": endingOn("https://acme.com/a", today.AddDate(0, 0, -4), 100, 100, 100, 100, 100, 100, 100, 100),
		"https://acme.com/b": series("https://acme.com/b", 100, 100, 100, 100),
	}}

	got, err := newDetector(r).TrafficDrop(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://acme.com/a", got[0].URL)
	assert.Equal(t, 100, got[0].Priority)
	assert.InDelta(t, 0, got[0].Evidence["current"], 0.001)
	assert.InDelta(t, 400.0/7, got[0].Evidence["avg7d"], 0.001)
	assert.Equal(t, 8, got[0].Evidence["days"])
	assert.Equal(t, "2024-01-05", got[0].Evidence["as_of"])
}

func TestTrafficDrop_AnchorsOnLatestDataDay(t *testing.T) {
	// The feed lags two days behind the clock; the window follows the data.
	lagged := today.AddDate(0, 0, -2)
	r := &fakeReader{stats: map[string][]model.DailyStat{
		"https://acme.com/a": endingOn("https://acme.com/a", lagged, 30, 100, 100, 100),
		"https://acme.com/b": endingOn("https://acme.com/b", lagged, 100, 100, 100, 100),
	}}

	got, err := newDetector(r).TrafficDrop(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://acme.com/a", got[0].URL)
	assert.Equal(t, 70, got[0].Priority)
	assert.Equal(t, "2024-01-03", got[0].Evidence["as_of"])
}

func TestTrafficDrop_GapsCountAsZero(t *testing.T) {
	stats := series("https://acme.com/a", 20, 100, 100, 100)
	// Drop the row two days back; the average covers 100, 0 and 100.
	stats = append(stats[:2], stats[3:]...)
	r := &fakeReader{stats: map[string][]model.DailyStat{"https://acme.com/a": stats}}

	got, err := newDetector(r).TrafficDrop(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 200.0/3, got[0].Evidence["avg7d"], 0.001)
	assert.Equal(t, 70, got[0].Priority)
}

func TestTrafficDrop_SortedByPriority(t *testing.T) {
	r := &fakeReader{stats: map[string][]model.DailyStat{
		"https://acme.com/b": series("https://acme.com/b", 30, 100, 100, 100),
		"https://acme.com/a": series("https://acme.com/a", 0, 100, 100, 100),
		"https://acme.com/c": series("https://acme.com/c", 30, 100, 100, 100),
	}}

	got, err := newDetector(r).TrafficDrop(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "https://acme.com/a", got[0].URL)
	assert.Equal(t, "https://acme.com/b", got[1].URL)
	assert.Equal(t, "https://acme.com/c", got[2].URL)
}

func TestTrafficDrop_ReaderError(t *testing.T) {
	_, err := newDetector(&fakeReader{err: errors.New("db down")}).TrafficDrop(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traffic drop")
}

func TestDrop(t *testing.T) {
	tests := []struct {
		name    string
		stats   []model.DailyStat
		wantOK  bool
		wantPct float64
	}{
		{"eighty percent", series("u", 20, 100, 100), true, 80},
		{"growth is negative", series("u", 150, 100, 100), true, -50},
		{"too few days", series("u", 0, 100), false, 0},
		{"below min average", series("u", 0, 9, 9, 9), false, 0},
		{"uneven history", series("u", 10, 10, 20, 30), true, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Drop(tt.stats, 3, 10)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.InDelta(t, tt.wantPct, got.Percent, 0.0001)
			}
		})
	}
}

func TestNewURLs(t *testing.T) {
	r := &fakeReader{
		newURLs: []model.PageImpressions{
			{URL: "https://acme.com/fresh", Impressions: 42, FirstSeen: model.DateOf(today)},
			{URL: "https://acme.com/quiet", Impressions: 0, FirstSeen: model.DateOf(today)},
			{URL: "https://acme.com/seen", Impressions: 900, FirstSeen: model.DateOf(today)},
		},
		checked: map[string]time.Time{"https://acme.com/seen": model.DateOf(today).AddDate(0, 0, -1)},
	}

	got, err := newDetector(r).NewURLs(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://acme.com/fresh", got[0].URL)
	assert.Equal(t, 42, got[0].Priority)
	assert.Equal(t, "https://acme.com/quiet", got[1].URL)
	assert.Equal(t, 1, got[1].Priority, "priority floor")
	assert.Equal(t, model.DateOf(today).AddDate(0, 0, -7), r.checkedSince)
}

func TestFixVerification(t *testing.T) {
	resolvedAt := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	verified := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	r := &fakeReader{resolved: []model.IssueRecord{
		{URL: "https://acme.com/a", IssueType: model.IssueNotFound, Status: model.IssueStatusResolved,
			ResolvedAt: &resolvedAt, LastChecked: model.DateOf(resolvedAt)},
		{URL: "https://acme.com/a", IssueType: model.IssueSoft404, Status: model.IssueStatusResolved,
			ResolvedAt: &resolvedAt, LastChecked: model.DateOf(resolvedAt)},
		{URL: "https://acme.com/b", IssueType: model.IssueNotFound, Status: model.IssueStatusResolved,
			ResolvedAt: &resolvedAt, LastChecked: verified},
	}}

	got, err := newDetector(r).FixVerification(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1, "one candidate per url, verified urls skipped")
	assert.Equal(t, "https://acme.com/a", got[0].URL)
	assert.Equal(t, 100, got[0].Priority)
	assert.Equal(t, model.ReasonFixVerification, got[0].Reason)
}

func TestNeedsVerification(t *testing.T) {
	at := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	assert.True(t, NeedsVerification(model.IssueRecord{Status: model.IssueStatusResolved, ResolvedAt: &at, LastChecked: model.DateOf(at)}))
	assert.True(t, NeedsVerification(model.IssueRecord{Status: model.IssueStatusResolved, ResolvedAt: &at, LastChecked: model.DateOf(at).AddDate(0, 0, -2)}))
	assert.False(t, NeedsVerification(model.IssueRecord{Status: model.IssueStatusResolved, ResolvedAt: &at, LastChecked: model.DateOf(at).AddDate(0, 0, 1)}))
	assert.False(t, NeedsVerification(model.IssueRecord{Status: model.IssueStatusActive, LastChecked: model.DateOf(at)}))
}

func TestRotation(t *testing.T) {
	r := &fakeReader{
		top: []model.PageImpressions{
			{URL: "https://acme.com/home", Impressions: 12345},
			{URL: "https://acme.com/pricing", Impressions: 4040},
			{URL: "https://acme.com/blog", Impressions: 30},
		},
		checked: map[string]time.Time{"https://acme.com/pricing": model.DateOf(today)},
	}

	got, err := newDetector(r).Rotation(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://acme.com/home", got[0].URL)
	assert.Equal(t, 123, got[0].Priority)
	assert.Equal(t, "https://acme.com/blog", got[1].URL)
	assert.Equal(t, 0, got[1].Priority)
	assert.Equal(t, 100, r.topLimit)
}

func TestRotation_CustomDivisor(t *testing.T) {
	r := &fakeReader{top: []model.PageImpressions{{URL: "https://acme.com/home", Impressions: 1000}}}
	d := New(r, config.DetectConfig{RotationDivisor: 10, RotationTopN: 5}).WithClock(clock)

	got, err := d.Rotation(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 100, got[0].Priority)
	assert.Equal(t, 5, r.topLimit)
}

func TestFixVerification_StoreScenario(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "detect.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &model.IssueRecord{
		Business:    "acme",
		URL:         "https://acme.com/fixed",
		IssueType:   model.IssueNotFound,
		Severity:    model.SeverityCritical,
		LastChecked: jan1,
	}
	_, err = st.UpsertActive(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, st.Resolve(ctx, rec.ID, jan1, model.ResolutionAutoVerified))

	d := New(st, config.DetectConfig{}).WithClock(clock)
	got, err := d.FixVerification(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://acme.com/fixed", got[0].URL)
	assert.Equal(t, 100, got[0].Priority)

	// A clean re-inspection today stamps last_checked and stops emission.
	require.NoError(t, st.MarkVerified(ctx, "acme", "https://acme.com/fixed", today))
	got, err = d.FixVerification(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, got)
}
