package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pointsemantic/internal/metrics"
	"github.com/banshee-data/pointsemantic/internal/monitoring"
	"github.com/banshee-data/pointsemantic/internal/timeutil"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	monitoring.SetLogger(nil)
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp())
	return s
}

func TestMigrations(t *testing.T) {
	s := setupTestStore(t)
	v, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	// A second run is a no-op.
	require.NoError(t, s.MigrateUp())

	require.NoError(t, s.MigrateDown())
	v, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	_, err = s.ListRuns(0)
	assert.Error(t, err, "table dropped")
}

func TestInsertAndGetRun(t *testing.T) {
	s := setupTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(timeutil.NewMockClock(now))

	cm := metrics.NewConfusionMatrix(3)
	require.NoError(t, cm.IncrementFromList([]int{0, 1, 1}, []int{0, 1, 0}))
	classes := ClassMetricsFromReport("common", []string{"unlabeled", "ground"}, cm.Report(metrics.SkipAbsent))

	acc := 0.75
	run := &Run{
		Model: "pointsemantic_folding", FromDataset: "semantic", ToDataset: "semantic", Split: "validation",
		NumFiles: 2, NumPoints: 3, CommonAccuracy: cm.OverallAccuracy(), CommonMeanIoU: cm.MeanIoU(metrics.SkipAbsent),
		NativeAccuracy: &acc, BatchLatencyMeanNs: int64(time.Millisecond),
	}
	require.NoError(t, s.InsertRun(run, classes))
	require.NotEmpty(t, run.RunID)
	require.Equal(t, now.UnixNano(), run.CreatedAt)

	got, err := s.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, got)
	require.NotNil(t, got.NativeAccuracy)
	assert.Nil(t, got.NativeMeanIoU)

	stored, err := s.ClassMetrics(run.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "ground", stored[1].ClassName)
	assert.Equal(t, "class 2", stored[2].ClassName)
	assert.Equal(t, int64(1), stored[1].TruePositives)
	assert.Equal(t, int64(1), stored[1].FalseNegatives)
	assert.False(t, stored[2].Present)
	assert.Equal(t, classes, stored)
}

func TestGetRunNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetRun("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListRuns(t *testing.T) {
	s := setupTestStore(t)
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.InsertRun(&Run{
			RunID: string(rune('a' + i - 1)), Model: "PBC_folding", FromDataset: "npm", ToDataset: "semantic",
			Split: "test", CreatedAt: int64(i),
		}, nil))
	}
	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "a", runs[2].RunID)

	runs, err = s.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	// Duplicate IDs are rejected without retrying.
	err = s.InsertRun(&Run{RunID: "a", Model: "x", FromDataset: "x", ToDataset: "x", Split: "x", CreatedAt: 9}, nil)
	assert.Error(t, err)
}

func TestInsertRunRollsBackOnClassError(t *testing.T) {
	s := setupTestStore(t)
	classes := []ClassMetric{
		{LabelSpace: "common", Label: 0, ClassName: "a"},
		{LabelSpace: "common", Label: 0, ClassName: "duplicate"},
	}
	err := s.InsertRun(&Run{RunID: "r", Model: "m", FromDataset: "f", ToDataset: "t", Split: "s"}, classes)
	require.Error(t, err)
	_, err = s.GetRun("r")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
