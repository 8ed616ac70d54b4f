package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crabitat/crabitat/internal/domain"
)

// setupStore creates a fresh database for repository tests. The DB is
// closed when the test completes.
func setupStore(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { db.Close() })
	return db
}

func sp(s string) *string { return &s }
func ip(n int64) *int64   { return &n }

func seedMission(t *testing.T, q Querier, id, colonyID string, createdAt int64) {
	t.Helper()
	err := InsertMission(context.Background(), q, domain.Mission{
		MissionID:   id,
		ColonyID:    colonyID,
		Prompt:      "do the thing",
		Status:      domain.MissionRunning,
		CreatedAtMS: createdAt,
	})
	require.NoError(t, err)
}

func seedTask(t *testing.T, q Querier, task domain.Task) {
	t.Helper()
	if task.Title == "" {
		task.Title = "task " + task.TaskID
	}
	if task.Status == "" {
		task.Status = domain.TaskQueued
	}
	require.NoError(t, InsertTask(context.Background(), q, task))
}

func seedRun(t *testing.T, q Querier, run domain.Run) {
	t.Helper()
	if run.BurrowPath == "" {
		run.BurrowPath = "/tmp/burrow"
	}
	if run.BurrowMode == "" {
		run.BurrowMode = domain.BurrowWorktree
	}
	if run.ProgressMessage == "" {
		run.ProgressMessage = "run started"
	}
	require.NoError(t, InsertRun(context.Background(), q, run))
}

func TestUpsertCrab_PreservesColonyAndCurrentRefs(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	crab := domain.Crab{
		CrabID: "crab-1", ColonyID: "col-1", Name: "pinchy", Role: "coder",
		State: domain.CrabIdle, UpdatedAtMS: 1000,
	}
	require.NoError(t, UpsertCrab(ctx, q, crab))

	// Simulate an in-flight assignment.
	require.NoError(t, SetCrabState(ctx, q, "crab-1", domain.CrabBusy, sp("task-1"), sp("run-1"), 2000))

	// Re-registering must not clobber the colony binding or clear the
	// in-flight references.
	crab.ColonyID = "other"
	crab.Name = "pinchy-2"
	crab.Role = "reviewer"
	crab.UpdatedAtMS = 3000
	require.NoError(t, UpsertCrab(ctx, q, crab))

	got, err := GetCrab(ctx, q, "crab-1")
	require.NoError(t, err)
	require.Equal(t, "col-1", got.ColonyID, "colony binding should survive re-registration")
	require.Equal(t, "pinchy-2", got.Name)
	require.Equal(t, "reviewer", got.Role)
	require.Equal(t, domain.CrabIdle, got.State, "state follows the new registration")
	require.NotNil(t, got.CurrentTaskID)
	require.Equal(t, "task-1", *got.CurrentTaskID)
	require.NotNil(t, got.CurrentRunID)
	require.Equal(t, "run-1", *got.CurrentRunID)
	require.Equal(t, int64(3000), got.UpdatedAtMS)
}

func TestGetCrab_NotFound(t *testing.T) {
	db := setupStore(t)

	_, err := GetCrab(context.Background(), db.Connection(), "missing")
	require.ErrorIs(t, err, ErrCrabNotFound)
}

func TestListIdleCrabs(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	for _, c := range []domain.Crab{
		{CrabID: "crab-c", ColonyID: "col", Name: "c", Role: "coder", State: domain.CrabIdle, UpdatedAtMS: 1},
		{CrabID: "crab-a", ColonyID: "col", Name: "a", Role: "coder", State: domain.CrabIdle, UpdatedAtMS: 1},
		{CrabID: "crab-b", ColonyID: "col", Name: "b", Role: "coder", State: domain.CrabBusy, UpdatedAtMS: 1},
	} {
		require.NoError(t, UpsertCrab(ctx, q, c))
	}

	idle, err := ListIdleCrabs(ctx, q)
	require.NoError(t, err)
	require.Len(t, idle, 2, "busy crabs are not candidates")
	require.Equal(t, "crab-a", idle[0].CrabID, "candidates come back in id order")
	require.Equal(t, "crab-c", idle[1].CrabID)
}

func TestTouchCrab(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	require.NoError(t, UpsertCrab(ctx, q, domain.Crab{
		CrabID: "crab-1", ColonyID: "col", Name: "p", Role: "coder",
		State: domain.CrabIdle, UpdatedAtMS: 1000,
	}))

	ok, err := TouchCrab(ctx, q, "crab-1", 2000)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := GetCrab(ctx, q, "crab-1")
	require.NoError(t, err)
	require.Equal(t, int64(2000), got.UpdatedAtMS)

	ok, err = TouchCrab(ctx, q, "missing", 3000)
	require.NoError(t, err)
	require.False(t, ok, "touching an unknown crab reports false")
}

func TestRoleTaken(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	require.NoError(t, UpsertCrab(ctx, q, domain.Crab{
		CrabID: "crab-1", ColonyID: "col", Name: "p", Role: "reviewer",
		State: domain.CrabIdle, UpdatedAtMS: 1,
	}))

	taken, err := RoleTaken(ctx, q, "col", "reviewer", "crab-2")
	require.NoError(t, err)
	require.True(t, taken)

	// The crab itself is excluded so re-registration does not collide.
	taken, err = RoleTaken(ctx, q, "col", "reviewer", "crab-1")
	require.NoError(t, err)
	require.False(t, taken)

	taken, err = RoleTaken(ctx, q, "other-col", "reviewer", "crab-2")
	require.NoError(t, err)
	require.False(t, taken, "roles are scoped per colony")
}

func TestMissionRoundTrip(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	m := domain.Mission{
		MissionID:     "mis-1",
		ColonyID:      "col-1",
		Prompt:        "fix the login bug",
		WorkflowName:  sp("dev-task"),
		Status:        domain.MissionPending,
		WorktreePath:  sp("burrows/mission-mis-1"),
		QueuePosition: ip(3),
		IssueNumber:   ip(42),
		CreatedAtMS:   1000,
	}
	require.NoError(t, InsertMission(ctx, q, m))

	got, err := GetMission(ctx, q, "mis-1")
	require.NoError(t, err)
	require.Equal(t, m, got)

	_, err = GetMission(ctx, q, "missing")
	require.ErrorIs(t, err, ErrMissionNotFound)
}

func TestListMissions_NewestFirst(t *testing.T) {
	db := setupStore(t)
	q := db.Connection()

	seedMission(t, q, "mis-old", "col", 1000)
	seedMission(t, q, "mis-new", "col", 3000)
	seedMission(t, q, "mis-mid", "col", 2000)

	got, err := ListMissions(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "mis-new", got[0].MissionID)
	require.Equal(t, "mis-mid", got[1].MissionID)
	require.Equal(t, "mis-old", got[2].MissionID)
}

func TestColonyQueue(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	insert := func(id string, pos *int64, status domain.MissionStatus) {
		require.NoError(t, InsertMission(ctx, q, domain.Mission{
			MissionID: id, ColonyID: "col", Prompt: "p", Status: status,
			QueuePosition: pos, CreatedAtMS: 1000,
		}))
	}
	insert("mis-2", ip(2), domain.MissionPending)
	insert("mis-1", ip(1), domain.MissionPending)
	insert("mis-adhoc", nil, domain.MissionRunning)

	queue, err := ListColonyQueue(ctx, q, "col")
	require.NoError(t, err)
	require.Len(t, queue, 2, "ad-hoc missions are not part of the queue")
	require.Equal(t, "mis-1", queue[0].MissionID)
	require.Equal(t, "mis-2", queue[1].MissionID)

	next, err := NextQueuePosition(ctx, q, "col")
	require.NoError(t, err)
	require.Equal(t, int64(3), next)

	next, err = NextQueuePosition(ctx, q, "empty-col")
	require.NoError(t, err)
	require.Equal(t, int64(1), next, "an empty queue starts at position 1")

	running, err := HasRunningQueuedMission(ctx, q, "col")
	require.NoError(t, err)
	require.False(t, running, "the ad-hoc running mission does not block the queue")

	m, ok, err := NextPendingQueuedMission(ctx, q, "col")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "mis-1", m.MissionID, "activation picks the smallest position")

	require.NoError(t, ActivateMission(ctx, q, "mis-1", "burrows/mission-mis-1"))

	running, err = HasRunningQueuedMission(ctx, q, "col")
	require.NoError(t, err)
	require.True(t, running)

	got, err := GetMission(ctx, q, "mis-1")
	require.NoError(t, err)
	require.Equal(t, domain.MissionRunning, got.Status)
	require.NotNil(t, got.WorktreePath)
	require.Equal(t, "burrows/mission-mis-1", *got.WorktreePath)
}

func TestDeleteMission(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1000)

	require.NoError(t, DeleteMission(ctx, q, "mis-1"))
	_, err := GetMission(ctx, q, "mis-1")
	require.ErrorIs(t, err, ErrMissionNotFound)

	require.ErrorIs(t, DeleteMission(ctx, q, "mis-1"), ErrMissionNotFound)
}

func TestQueuedIssueNumbers(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	require.NoError(t, InsertMission(ctx, q, domain.Mission{
		MissionID: "mis-1", ColonyID: "col", Prompt: "p", Status: domain.MissionPending,
		IssueNumber: ip(7), CreatedAtMS: 1,
	}))
	require.NoError(t, InsertMission(ctx, q, domain.Mission{
		MissionID: "mis-2", ColonyID: "col", Prompt: "p", Status: domain.MissionPending,
		CreatedAtMS: 1,
	}))

	nums, err := QueuedIssueNumbers(ctx, q, "col")
	require.NoError(t, err)
	require.Equal(t, map[int64]bool{7: true}, nums)
}

func TestTaskRoundTrip(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1000)

	task := domain.Task{
		TaskID:    "task-1",
		MissionID: "mis-1",
		Title:     "[review] reviewer",
		Status:    domain.TaskBlocked,
		StepID:    sp("review"),
		Role:      sp("reviewer"),
		Prompt:    sp("review the changes"),
		Context:   sp(`{"_max_retries":2}`),
		MaxRetries: func() *int64 {
			n := int64(2)
			return &n
		}(),
		CreatedAtMS: 1000,
		UpdatedAtMS: 1000,
	}
	require.NoError(t, InsertTask(ctx, q, task))

	got, err := GetTask(ctx, q, "task-1")
	require.NoError(t, err)
	require.Equal(t, task, got)

	_, err = GetTask(ctx, q, "missing")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestListQueuedTasks_OldestFirst(t *testing.T) {
	db := setupStore(t)
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1000)
	seedTask(t, q, domain.Task{TaskID: "task-new", MissionID: "mis-1", CreatedAtMS: 3000, UpdatedAtMS: 3000})
	seedTask(t, q, domain.Task{TaskID: "task-old", MissionID: "mis-1", CreatedAtMS: 1000, UpdatedAtMS: 1000})
	seedTask(t, q, domain.Task{TaskID: "task-blocked", MissionID: "mis-1", Status: domain.TaskBlocked, CreatedAtMS: 500, UpdatedAtMS: 500})

	queued, err := ListQueuedTasks(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	require.Equal(t, "task-old", queued[0].TaskID)
	require.Equal(t, "task-new", queued[1].TaskID)
}

func TestTaskDeps(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1000)
	seedTask(t, q, domain.Task{TaskID: "plan", MissionID: "mis-1", CreatedAtMS: 1, UpdatedAtMS: 1})
	seedTask(t, q, domain.Task{TaskID: "implement", MissionID: "mis-1", CreatedAtMS: 2, UpdatedAtMS: 2})
	seedTask(t, q, domain.Task{TaskID: "review", MissionID: "mis-1", CreatedAtMS: 3, UpdatedAtMS: 3})

	require.NoError(t, InsertTaskDep(ctx, q, "implement", "plan"))
	require.NoError(t, InsertTaskDep(ctx, q, "review", "plan"))
	require.NoError(t, InsertTaskDep(ctx, q, "review", "implement"))
	// Re-inserting the same edge is a no-op.
	require.NoError(t, InsertTaskDep(ctx, q, "review", "implement"))

	deps, err := ListDependencyIDs(ctx, q, "review")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"plan", "implement"}, deps)

	dependents, err := ListDirectDependents(ctx, q, "plan")
	require.NoError(t, err)
	require.Len(t, dependents, 2)
	require.Equal(t, "implement", dependents[0].TaskID, "dependents come back in creation order")
	require.Equal(t, "review", dependents[1].TaskID)
}

func TestBusyMissionIDs(t *testing.T) {
	db := setupStore(t)
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1)
	seedMission(t, q, "mis-2", "col", 1)
	seedMission(t, q, "mis-3", "col", 1)
	seedTask(t, q, domain.Task{TaskID: "t1", MissionID: "mis-1", Status: domain.TaskAssigned, CreatedAtMS: 1, UpdatedAtMS: 1})
	seedTask(t, q, domain.Task{TaskID: "t2", MissionID: "mis-2", Status: domain.TaskRunning, CreatedAtMS: 1, UpdatedAtMS: 1})
	seedTask(t, q, domain.Task{TaskID: "t3", MissionID: "mis-3", Status: domain.TaskQueued, CreatedAtMS: 1, UpdatedAtMS: 1})

	busy, err := BusyMissionIDs(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"mis-1": true, "mis-2": true}, busy,
		"assigned counts as in-flight, queued does not")
}

func TestMissionTaskStats(t *testing.T) {
	db := setupStore(t)
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1)
	seedTask(t, q, domain.Task{TaskID: "t1", MissionID: "mis-1", Status: domain.TaskCompleted, CreatedAtMS: 1, UpdatedAtMS: 1})
	seedTask(t, q, domain.Task{TaskID: "t2", MissionID: "mis-1", Status: domain.TaskSkipped, CreatedAtMS: 1, UpdatedAtMS: 1})
	seedTask(t, q, domain.Task{TaskID: "t3", MissionID: "mis-1", Status: domain.TaskFailed, CreatedAtMS: 1, UpdatedAtMS: 1})
	seedTask(t, q, domain.Task{TaskID: "t4", MissionID: "mis-1", Status: domain.TaskBlocked, CreatedAtMS: 1, UpdatedAtMS: 1})

	stats, err := MissionTaskStats(context.Background(), q, "mis-1")
	require.NoError(t, err)
	require.Equal(t, TaskStats{Total: 4, NonTerminal: 1, Failed: 1}, stats)

	empty, err := MissionTaskStats(context.Background(), q, "missing")
	require.NoError(t, err)
	require.Equal(t, TaskStats{}, empty)
}

func TestListMergeWaitTasks(t *testing.T) {
	db := setupStore(t)
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1)
	seedTask(t, q, domain.Task{TaskID: "t1", MissionID: "mis-1", StepID: sp("merge-wait"), Status: domain.TaskQueued, CreatedAtMS: 1, UpdatedAtMS: 1})
	seedTask(t, q, domain.Task{TaskID: "t2", MissionID: "mis-1", StepID: sp("merge-wait"), Status: domain.TaskBlocked, CreatedAtMS: 2, UpdatedAtMS: 2})
	seedTask(t, q, domain.Task{TaskID: "t3", MissionID: "mis-1", StepID: sp("pr"), Status: domain.TaskQueued, CreatedAtMS: 3, UpdatedAtMS: 3})

	got, err := ListMergeWaitTasks(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 1, "only queued merge-wait tasks are polled")
	require.Equal(t, "t1", got[0].TaskID)
}

func TestRunRoundTrip(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1000)
	seedTask(t, q, domain.Task{TaskID: "task-1", MissionID: "mis-1", CreatedAtMS: 1000, UpdatedAtMS: 1000})

	run := domain.Run{
		RunID:           "run-1",
		MissionID:       "mis-1",
		TaskID:          "task-1",
		CrabID:          "crab-1",
		Status:          domain.RunRunning,
		BurrowPath:      "/work/burrow",
		BurrowMode:      domain.BurrowExternalRepo,
		ProgressMessage: "run started",
		Metrics: domain.RunMetrics{
			PromptTokens:     100,
			CompletionTokens: 50,
			TotalTokens:      150,
			FirstTokenMS:     ip(120),
		},
		StartedAtMS: 1000,
		UpdatedAtMS: 1000,
	}
	require.NoError(t, InsertRun(ctx, q, run))

	got, err := GetRun(ctx, q, "run-1")
	require.NoError(t, err)
	require.Equal(t, run, got)

	_, err = GetRun(ctx, q, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestUpdateRunRow(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1000)
	seedTask(t, q, domain.Task{TaskID: "task-1", MissionID: "mis-1", CreatedAtMS: 1000, UpdatedAtMS: 1000})
	seedRun(t, q, domain.Run{
		RunID: "run-1", MissionID: "mis-1", TaskID: "task-1", CrabID: "crab-1",
		Status: domain.RunRunning, StartedAtMS: 1000, UpdatedAtMS: 1000,
	})

	updated, err := GetRun(ctx, q, "run-1")
	require.NoError(t, err)
	updated.Status = domain.RunCompleted
	updated.ProgressMessage = "all done"
	updated.Summary = sp("shipped it")
	updated.Metrics.TotalTokens = 900
	updated.Metrics.EndToEndMS = ip(5000)
	updated.UpdatedAtMS = 2000
	updated.CompletedAtMS = ip(2000)
	require.NoError(t, UpdateRunRow(ctx, q, updated))

	got, err := GetRun(ctx, q, "run-1")
	require.NoError(t, err)
	require.Equal(t, updated, got)
}

func TestLatestCompletedRunForTask(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1000)
	seedTask(t, q, domain.Task{TaskID: "task-1", MissionID: "mis-1", CreatedAtMS: 1000, UpdatedAtMS: 1000})

	_, ok, err := LatestCompletedRunForTask(ctx, q, "task-1")
	require.NoError(t, err)
	require.False(t, ok, "no completed runs yet")

	seedRun(t, q, domain.Run{
		RunID: "run-early", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunCompleted, Summary: sp("first pass"),
		StartedAtMS: 1000, UpdatedAtMS: 1500, CompletedAtMS: ip(1500),
	})
	seedRun(t, q, domain.Run{
		RunID: "run-late", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunCompleted, Summary: sp("second pass"),
		StartedAtMS: 2000, UpdatedAtMS: 2500, CompletedAtMS: ip(2500),
	})
	seedRun(t, q, domain.Run{
		RunID: "run-failed", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunFailed, StartedAtMS: 3000, UpdatedAtMS: 3500, CompletedAtMS: ip(3500),
	})

	got, ok, err := LatestCompletedRunForTask(ctx, q, "task-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "run-late", got.RunID, "failed runs never win")

	count, err := CountCompletedRunsForTask(ctx, q, "task-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestListCompletedRunsByMission(t *testing.T) {
	db := setupStore(t)
	q := db.Connection()

	seedMission(t, q, "mis-1", "col", 1000)
	seedTask(t, q, domain.Task{TaskID: "task-1", MissionID: "mis-1", CreatedAtMS: 1000, UpdatedAtMS: 1000})
	seedRun(t, q, domain.Run{
		RunID: "run-a", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunCompleted, StartedAtMS: 1000, UpdatedAtMS: 1000, CompletedAtMS: ip(1000),
	})
	seedRun(t, q, domain.Run{
		RunID: "run-b", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunCompleted, StartedAtMS: 2000, UpdatedAtMS: 2000, CompletedAtMS: ip(2000),
	})
	seedRun(t, q, domain.Run{
		RunID: "run-c", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunRunning, StartedAtMS: 3000, UpdatedAtMS: 3000,
	})

	got, err := ListCompletedRunsByMission(context.Background(), q, "mis-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "run-b", got[0].RunID, "most recently completed first")
	require.Equal(t, "run-a", got[1].RunID)
}

func TestAvgEndToEndMS(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	q := db.Connection()

	avg, err := AvgEndToEndMS(ctx, q)
	require.NoError(t, err)
	require.Nil(t, avg, "no completed runs means no average")

	seedMission(t, q, "mis-1", "col", 1000)
	seedTask(t, q, domain.Task{TaskID: "task-1", MissionID: "mis-1", CreatedAtMS: 1000, UpdatedAtMS: 1000})
	seedRun(t, q, domain.Run{
		RunID: "run-a", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunCompleted, Metrics: domain.RunMetrics{EndToEndMS: ip(1000)},
		StartedAtMS: 1, UpdatedAtMS: 1, CompletedAtMS: ip(1),
	})
	seedRun(t, q, domain.Run{
		RunID: "run-b", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunCompleted, Metrics: domain.RunMetrics{EndToEndMS: ip(2001)},
		StartedAtMS: 2, UpdatedAtMS: 2, CompletedAtMS: ip(2),
	})
	// A completed run that never reported the metric still counts, as zero.
	seedRun(t, q, domain.Run{
		RunID: "run-c", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunCompleted, StartedAtMS: 3, UpdatedAtMS: 3, CompletedAtMS: ip(3),
	})
	// Running runs are excluded entirely.
	seedRun(t, q, domain.Run{
		RunID: "run-d", MissionID: "mis-1", TaskID: "task-1", CrabID: "c",
		Status: domain.RunRunning, Metrics: domain.RunMetrics{EndToEndMS: ip(9999)},
		StartedAtMS: 4, UpdatedAtMS: 4,
	})

	avg, err = AvgEndToEndMS(ctx, q)
	require.NoError(t, err)
	require.NotNil(t, avg)
	require.Equal(t, int64(1000), *avg, "integer division over all completed runs")
}
