package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/seo-monitor/internal/config"
	"github.com/sells-group/seo-monitor/internal/model"
)

func entry() *model.SyncLogEntry {
	return &model.SyncLogEntry{
		Business:          "acme-metrics",
		Status:            model.SyncStatusCompleted,
		StartedAt:         time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC),
		DurationMS:        90000,
		PagesSynced:       1200,
		AnomaliesDetected: 12,
		AnomaliesByReason: map[model.Reason]int{model.ReasonTrafficDrop: 7, model.ReasonRotation: 5},
		URLsInspected:     10,
		NewIssuesFound:    2,
		IssuesResolved:    1,
		APICallsUsed:      11,
		RateLimited:       true,
	}
}

func TestInit(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, syncRunsTotal)
	require.NotNil(t, lastSyncTimestamp)
}

func TestRecordSync(t *testing.T) {
	e := entry()
	RecordSync(e)

	assert.Equal(t, 1.0, testutil.ToFloat64(syncRunsTotal.WithLabelValues("acme-metrics", "completed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(anomaliesDetected.WithLabelValues("acme-metrics", "traffic_drop")))
	assert.Equal(t, 0.0, testutil.ToFloat64(anomaliesDetected.WithLabelValues("acme-metrics", "new_url")))
	assert.Equal(t, 10.0, testutil.ToFloat64(urlsInspectedTotal.WithLabelValues("acme-metrics")))
	assert.Equal(t, 11.0, testutil.ToFloat64(inspectionAPICallsTotal.WithLabelValues("acme-metrics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rateLimitedTotal.WithLabelValues("acme-metrics")))
	assert.Equal(t, float64(e.StartedAt.Unix()), testutil.ToFloat64(lastSyncTimestamp.WithLabelValues("acme-metrics", "completed")))
}

func TestRunGauges(t *testing.T) {
	reg := RunGauges(entry())
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	expected := `
# HELP seomon_run_urls_inspected URLs inspected by the last run.
# TYPE seomon_run_urls_inspected gauge
seomon_run_urls_inspected 10
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "seomon_run_urls_inspected"))
}

func TestPush(t *testing.T) {
	var path, body string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	err := Push(context.Background(), config.MetricsConfig{PushgatewayURL: ts.URL, Job: "seo_sync"}, entry())
	require.NoError(t, err)
	assert.Equal(t, "/metrics/job/seo_sync/business/acme-metrics", path)
	assert.NotEmpty(t, body)
}

func TestPush_Disabled(t *testing.T) {
	require.NoError(t, Push(context.Background(), config.MetricsConfig{}, entry()))
}

func TestPush_GatewayError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := Push(context.Background(), config.MetricsConfig{PushgatewayURL: ts.URL}, entry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics: push")
}

func TestHandler(t *testing.T) {
	e := entry()
	e.Business = "acme-handler"
	RecordSync(e)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "seomon_sync_runs_total")
}
