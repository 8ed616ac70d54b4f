package controlplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/testutil"
)

func TestSnapshot_Summary(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithCrab("crab-1", testutil.WorkingOn("t-1", "run-live")).
		WithCrab("crab-2", testutil.Role("any")).
		WithMission("mis-1").
		WithTask("t-1", "mis-1", testutil.TaskState(domain.TaskRunning)).
		WithRun("run-a", "mis-1", "t-1", "crab-1",
			testutil.RunState(domain.RunCompleted),
			testutil.Metrics(domain.RunMetrics{TotalTokens: 100, EndToEndMS: ip(4000)})).
		WithRun("run-b", "mis-1", "t-1", "crab-1",
			testutil.RunState(domain.RunCompleted),
			testutil.Metrics(domain.RunMetrics{TotalTokens: 40})).
		WithRun("run-c", "mis-1", "t-1", "crab-1",
			testutil.RunState(domain.RunFailed),
			testutil.Metrics(domain.RunMetrics{TotalTokens: 50, EndToEndMS: ip(100)})).
		WithRun("run-live", "mis-1", "t-1", "crab-1",
			testutil.Metrics(domain.RunMetrics{TotalTokens: 7})).
		Build()

	snap, err := h.svc.Snapshot(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, snap.Summary.TotalCrabs)
	require.Equal(t, 1, snap.Summary.BusyCrabs)
	require.Equal(t, 1, snap.Summary.RunningTasks)
	require.Equal(t, 1, snap.Summary.RunningRuns)
	require.Equal(t, 2, snap.Summary.CompletedRuns)
	require.Equal(t, 1, snap.Summary.FailedRuns)
	require.Equal(t, int64(197), snap.Summary.TotalTokens,
		"token totals count every run regardless of outcome")
	require.Equal(t, int64(2000), *snap.Summary.AvgEndToEndMS,
		"completed runs without timing drag the average toward zero")
	require.Greater(t, snap.GeneratedAtMS, int64(0))

	require.Len(t, snap.Colonies, 1)
	require.Len(t, snap.Crabs, 2)
	require.Len(t, snap.Missions, 1)
	require.Len(t, snap.Tasks, 1)
	require.Len(t, snap.Runs, 4)
}

func TestSnapshot_EmptyStore(t *testing.T) {
	h := newHarness(t)

	snap, err := h.svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Zero(t, snap.Summary.TotalCrabs)
	require.Nil(t, snap.Summary.AvgEndToEndMS,
		"no completed runs means no average at all")
	require.Empty(t, snap.Missions)
}
