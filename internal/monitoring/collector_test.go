package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/seo-monitor/internal/model"
)

// mockSyncLog implements SyncLogQuerier for testing.
type mockSyncLog struct {
	entries []model.SyncLogEntry
	err     error
	limit   int
}

func (m *mockSyncLog) ListSyncLog(_ context.Context, _ string, limit int) ([]model.SyncLogEntry, error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	if len(m.entries) > limit {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

var collectedAt = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

func run(id string, status model.SyncStatus, hoursAgo int) model.SyncLogEntry {
	return model.SyncLogEntry{
		ID:        id,
		Business:  "acme",
		Status:    status,
		StartedAt: collectedAt.Add(-time.Duration(hoursAgo) * time.Hour),
	}
}

func TestCollector_EmptyLog(t *testing.T) {
	c := NewCollector(&mockSyncLog{})
	snap, err := c.Collect(context.Background(), "acme", 10)
	require.NoError(t, err)
	assert.Nil(t, snap.Latest)
	assert.Zero(t, snap.RunsConsidered)
	assert.Nil(t, snap.LastSuccessAt)
}

func TestCollector_DefaultLookback(t *testing.T) {
	m := &mockSyncLog{}
	_, err := NewCollector(m).Collect(context.Background(), "acme", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, m.limit)
}

func TestCollector_Error(t *testing.T) {
	_, err := NewCollector(&mockSyncLog{err: errors.New("db down")}).Collect(context.Background(), "acme", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list sync log")
}

func TestSummarize_FailureStreak(t *testing.T) {
	entries := []model.SyncLogEntry{
		run("r4", model.SyncStatusFailed, 1),
		run("r3", model.SyncStatusFailed, 25),
		run("r2", model.SyncStatusCompleted, 49),
		run("r1", model.SyncStatusFailed, 73),
	}
	snap := Summarize("acme", entries, collectedAt)

	assert.Equal(t, "r4", snap.Latest.ID)
	assert.Equal(t, 4, snap.RunsConsidered)
	assert.Equal(t, 3, snap.FailedRuns)
	assert.Equal(t, 2, snap.ConsecutiveFailures)
	require.NotNil(t, snap.LastSuccessAt)
	assert.InDelta(t, 49, snap.HoursSinceSuccess, 0.001)
}

func TestSummarize_AllFailed(t *testing.T) {
	snap := Summarize("acme", []model.SyncLogEntry{
		run("r2", model.SyncStatusFailed, 1),
		run("r1", model.SyncStatusFailed, 2),
	}, collectedAt)
	assert.Equal(t, 2, snap.ConsecutiveFailures)
	assert.Nil(t, snap.LastSuccessAt)
	assert.Zero(t, snap.HoursSinceSuccess)
}

func TestFromEntry(t *testing.T) {
	e := run("r1", model.SyncStatusCompleted, 0)
	snap := FromEntry(&e, 3, collectedAt)
	assert.Equal(t, 3, snap.NewCritical)
	assert.Equal(t, 1, snap.RunsConsidered)
	assert.Zero(t, snap.ConsecutiveFailures)
}
