package controlplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/testutil"
)

func TestCompleteRun_UnblocksDependent(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).WithStandardCrew().WithDevTaskMission("mis-1").Build()

	h.finishStep(t, "mis-1", "plan", "crab-planner", "the plan")

	detail := h.mission(t, "mis-1")
	require.Equal(t, domain.MissionRunning, detail.Mission.Status)

	implement := stepTask(t, detail, "implement")
	require.Equal(t, domain.TaskAssigned, implement.Status,
		"unblocked task should be picked up by the scheduler in the same transaction")
	require.Equal(t, "crab-coder", *implement.AssignedCrabID)
	require.NotNil(t, implement.Context)
	require.Equal(t, "## plan\nthe plan", *implement.Context)

	review := stepTask(t, detail, "review")
	require.Equal(t, domain.TaskBlocked, review.Status, "transitive dependent stays blocked")

	planner := h.crab(t, "crab-planner")
	require.Equal(t, domain.CrabIdle, planner.State)
	require.Nil(t, planner.CurrentTaskID)
	require.Nil(t, planner.CurrentRunID)
}

func TestConditionalFix_SkippedOnPass(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).WithStandardCrew().WithDevTaskMission("mis-1").Build()

	h.finishStep(t, "mis-1", "plan", "crab-planner", "the plan")
	h.finishStep(t, "mis-1", "implement", "crab-coder", "impl done")
	h.finishStep(t, "mis-1", "review", "crab-reviewer", `{"result":"pass"}`)

	detail := h.mission(t, "mis-1")
	fix := stepTask(t, detail, "fix")
	require.Equal(t, domain.TaskSkipped, fix.Status)
	require.Equal(t, `{"_condition":"review.result == 'fail'"}`, *fix.Context,
		"a skipped task keeps its seed context")
	require.Equal(t, domain.MissionCompleted, detail.Mission.Status)

	for _, id := range []string{"crab-planner", "crab-coder", "crab-reviewer"} {
		require.Equal(t, domain.CrabIdle, h.crab(t, id).State)
	}
}

func TestConditionalFix_QueuedOnFail(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).WithStandardCrew().WithDevTaskMission("mis-1").Build()

	h.finishStep(t, "mis-1", "plan", "crab-planner", "the plan")
	h.finishStep(t, "mis-1", "implement", "crab-coder", "impl done")
	h.finishStep(t, "mis-1", "review", "crab-reviewer", `{"result":"fail"}`)

	detail := h.mission(t, "mis-1")
	require.Equal(t, domain.MissionRunning, detail.Mission.Status)

	fix := stepTask(t, detail, "fix")
	require.Equal(t, domain.TaskAssigned, fix.Status)
	require.Equal(t, "crab-coder", *fix.AssignedCrabID)
	require.Equal(t, "## review\n{\"result\":\"fail\"}", *fix.Context,
		"accumulated context replaces the seed on unblock")
}

func TestFixCompletion_RequeuesReview(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).WithStandardCrew().WithDevTaskMission("mis-1").Build()

	h.finishStep(t, "mis-1", "plan", "crab-planner", "the plan")
	h.finishStep(t, "mis-1", "implement", "crab-coder", "impl done")
	h.finishStep(t, "mis-1", "review", "crab-reviewer", `{"result":"fail"}`)
	h.finishStep(t, "mis-1", "fix", "crab-coder", "patched")

	detail := h.mission(t, "mis-1")
	review := stepTask(t, detail, "review")
	require.Equal(t, domain.TaskAssigned, review.Status,
		"review goes back through the queue after a fix round")
	require.Equal(t, "crab-reviewer", *review.AssignedCrabID)
	require.Contains(t, *review.Context, "## implement",
		"requeue does not rebuild the accumulated context")
	require.Equal(t, domain.MissionRunning, detail.Mission.Status)

	h.finishStep(t, "mis-1", "review", "crab-reviewer", `{"result":"pass"}`)

	detail = h.mission(t, "mis-1")
	require.Equal(t, domain.MissionCompleted, detail.Mission.Status)
	require.Equal(t, domain.TaskCompleted, stepTask(t, detail, "review").Status)
	require.Equal(t, domain.TaskCompleted, stepTask(t, detail, "fix").Status)
}

func TestReviewRetryBudget_FailsMission(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithStandardCrew().
		WithMission("mis-1", testutil.Workflow("dev-task"), testutil.Worktree("burrows/mission-mis-1")).
		WithTask("t-plan", "mis-1", testutil.Step("plan", "planner"), testutil.TaskState(domain.TaskCompleted)).
		WithTask("t-implement", "mis-1", testutil.Step("implement", "coder"), testutil.TaskState(domain.TaskCompleted)).
		WithTask("t-review", "mis-1", testutil.Step("review", "reviewer"), testutil.TaskState(domain.TaskCompleted), testutil.MaxRetries(1)).
		WithTask("t-fix", "mis-1", testutil.Step("fix", "coder"), testutil.TaskState(domain.TaskRunning), testutil.AssignedTo("crab-coder")).
		WithDependency("t-implement", "t-plan").
		WithDependency("t-review", "t-implement").
		WithDependency("t-fix", "t-review").
		WithRun("run-r1", "mis-1", "t-review", "crab-reviewer",
			testutil.RunState(domain.RunCompleted), testutil.Summary(`{"result":"fail"}`)).
		WithRun("run-r2", "mis-1", "t-review", "crab-reviewer",
			testutil.RunState(domain.RunCompleted), testutil.Summary(`{"result":"fail"}`)).
		WithRun("run-f1", "mis-1", "t-fix", "crab-coder").
		Build()
	ctx := context.Background()

	summary := "fixed once more"
	_, err := h.svc.CompleteRun(ctx, CompleteRunRequest{
		RunID:   "run-f1",
		Status:  string(domain.RunCompleted),
		Summary: &summary,
	})
	require.NoError(t, err)

	detail := h.mission(t, "mis-1")
	require.Equal(t, domain.MissionFailed, detail.Mission.Status,
		"two review rounds against a budget of one must fail the mission")
	require.Equal(t, domain.TaskCompleted, stepTask(t, detail, "review").Status,
		"terminal tasks are not rewritten")
	require.Equal(t, domain.TaskCompleted, stepTask(t, detail, "fix").Status)
}

func TestFailedTask_CascadesToDependents(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).WithStandardCrew().WithDevTaskMission("mis-1").Build()

	h.finishStep(t, "mis-1", "plan", "crab-planner", "the plan")
	h.failStep(t, "mis-1", "implement", "crab-coder")

	detail := h.mission(t, "mis-1")
	require.Equal(t, domain.MissionFailed, detail.Mission.Status)
	require.Equal(t, domain.TaskCompleted, stepTask(t, detail, "plan").Status)
	require.Equal(t, domain.TaskFailed, stepTask(t, detail, "implement").Status)
	require.Equal(t, domain.TaskFailed, stepTask(t, detail, "review").Status)
	require.Equal(t, domain.TaskFailed, stepTask(t, detail, "fix").Status)

	for _, task := range detail.Tasks {
		require.NotEqual(t, domain.TaskAssigned, task.Status,
			"the scheduler must not hand out work in a failed mission")
	}
	for _, id := range []string{"crab-planner", "crab-coder", "crab-reviewer"} {
		require.Equal(t, domain.CrabIdle, h.crab(t, id).State)
	}
}

func TestSkippedTask_UnblocksItsDependents(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithTask("t-a", "mis-1", testutil.Step("a", "any"), testutil.TaskState(domain.TaskQueued)).
		WithTask("t-b", "mis-1", testutil.Step("b", "any"), testutil.TaskState(domain.TaskBlocked),
			testutil.TaskContext(`{"_condition":"a.result == 'go'"}`)).
		WithTask("t-c", "mis-1", testutil.Step("c", "any"), testutil.TaskState(domain.TaskBlocked)).
		WithDependency("t-b", "t-a").
		WithDependency("t-c", "t-b").
		Build()
	ctx := context.Background()

	run, err := h.svc.StartRun(ctx, StartRunRequest{
		MissionID:  "mis-1",
		TaskID:     "t-a",
		CrabID:     "wanderer",
		BurrowPath: "/tmp/burrow-a",
	})
	require.NoError(t, err)
	summary := `{"result":"stop"}`
	_, err = h.svc.CompleteRun(ctx, CompleteRunRequest{
		RunID:   run.RunID,
		Status:  string(domain.RunCompleted),
		Summary: &summary,
	})
	require.NoError(t, err)

	detail := h.mission(t, "mis-1")
	require.Equal(t, domain.TaskSkipped, stepTask(t, detail, "b").Status)

	c := stepTask(t, detail, "c")
	require.Equal(t, domain.TaskQueued, c.Status, "a skip settles its dependents too")
	require.Equal(t, "## b\n(no summary)", *c.Context,
		"a dependency that never ran renders the placeholder summary")
}

func TestAccumulatedContext_OrderAndPlaceholders(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithTask("t-first", "mis-1", testutil.Step("plan", "any"), testutil.TaskState(domain.TaskRunning)).
		WithTask("t-second", "mis-1", testutil.TaskState(domain.TaskCompleted)).
		WithTask("t-last", "mis-1", testutil.Step("wrap", "any"), testutil.TaskState(domain.TaskBlocked)).
		WithDependency("t-last", "t-first").
		WithDependency("t-last", "t-second").
		WithRun("run-2", "mis-1", "t-second", "wanderer",
			testutil.RunState(domain.RunCompleted), testutil.Summary("second output")).
		WithRun("run-1", "mis-1", "t-first", "wanderer").
		Build()
	ctx := context.Background()

	summary := "first output"
	_, err := h.svc.CompleteRun(ctx, CompleteRunRequest{
		RunID:   "run-1",
		Status:  string(domain.RunCompleted),
		Summary: &summary,
	})
	require.NoError(t, err)

	detail := h.mission(t, "mis-1")
	last := stepTask(t, detail, "wrap")
	require.Equal(t, domain.TaskQueued, last.Status)
	require.Equal(t, "## plan\nfirst output\n\n## unknown\nsecond output", *last.Context,
		"sections follow dependency creation order; a step-less dependency renders as unknown")
}

func TestMissionContext_LatestRunWins(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithTask("t-review", "mis-1", testutil.Step("review", "reviewer"), testutil.TaskState(domain.TaskRunning)).
		WithTask("t-fix", "mis-1", testutil.Step("fix", "coder"), testutil.TaskState(domain.TaskBlocked),
			testutil.TaskContext(`{"_condition":"review.result == 'fail'"}`)).
		WithDependency("t-fix", "t-review").
		WithRun("run-old", "mis-1", "t-review", "crab-reviewer",
			testutil.RunState(domain.RunCompleted), testutil.Summary(`{"result":"fail"}`)).
		WithRun("run-new", "mis-1", "t-review", "crab-reviewer").
		Build()
	ctx := context.Background()

	summary := `{"result":"pass"}`
	_, err := h.svc.CompleteRun(ctx, CompleteRunRequest{
		RunID:   "run-new",
		Status:  string(domain.RunCompleted),
		Summary: &summary,
	})
	require.NoError(t, err)

	detail := h.mission(t, "mis-1")
	require.Equal(t, domain.TaskSkipped, stepTask(t, detail, "fix").Status,
		"the newest completed run's verdict decides the condition")
	require.Equal(t, domain.MissionCompleted, detail.Mission.Status)
}

func TestPRStep_CapturesPRNumber(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).WithStandardCrew().Build()
	ctx := context.Background()
	mission, err := h.svc.CreateMission(ctx, CreateMissionRequest{
		Prompt:   "open the pr",
		ColonyID: "col-1",
		Workflow: sp("dev-task-pr"),
	})
	require.NoError(t, err)
	id := mission.MissionID

	h.finishStep(t, id, "plan", "crab-planner", "the plan")
	h.finishStep(t, id, "implement", "crab-coder", "impl done")
	h.finishStep(t, id, "review", "crab-reviewer", `{"result":"pass"}`)
	h.finishStep(t, id, "pr", "crab-coder", `{"result":"42"}`)

	detail := h.mission(t, id)
	require.NotNil(t, detail.Mission.PRNumber)
	require.Equal(t, int64(42), *detail.Mission.PRNumber)
	require.Equal(t, domain.MissionRunning, detail.Mission.Status,
		"merge-wait keeps the mission open")

	mergeWait := stepTask(t, detail, "merge-wait")
	require.Equal(t, domain.TaskQueued, mergeWait.Status,
		"merge-wait is poller territory, never scheduled to a crab")
	require.Nil(t, mergeWait.AssignedCrabID)
}

func TestPRStep_NonNumericResultIgnored(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).WithStandardCrew().Build()
	ctx := context.Background()
	mission, err := h.svc.CreateMission(ctx, CreateMissionRequest{
		Prompt:   "open the pr",
		ColonyID: "col-1",
		Workflow: sp("dev-task-pr"),
	})
	require.NoError(t, err)
	id := mission.MissionID

	h.finishStep(t, id, "plan", "crab-planner", "the plan")
	h.finishStep(t, id, "implement", "crab-coder", "impl done")
	h.finishStep(t, id, "review", "crab-reviewer", `{"result":"pass"}`)
	h.finishStep(t, id, "pr", "crab-coder", `{"result":"no pr today"}`)

	detail := h.mission(t, id)
	require.Nil(t, detail.Mission.PRNumber)
	require.Equal(t, domain.TaskQueued, stepTask(t, detail, "merge-wait").Status)
}

func TestAdHocTask_DoesNotCascade(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithTask("t-adhoc", "mis-1", testutil.TaskState(domain.TaskRunning)).
		WithTask("t-step", "mis-1", testutil.Step("later", "any"), testutil.TaskState(domain.TaskBlocked)).
		WithDependency("t-step", "t-adhoc").
		WithRun("run-1", "mis-1", "t-adhoc", "wanderer").
		Build()
	ctx := context.Background()

	summary := "adhoc done"
	_, err := h.svc.CompleteRun(ctx, CompleteRunRequest{
		RunID:   "run-1",
		Status:  string(domain.RunCompleted),
		Summary: &summary,
	})
	require.NoError(t, err)

	detail := h.mission(t, "mis-1")
	require.Equal(t, domain.TaskBlocked, stepTask(t, detail, "later").Status,
		"tasks without a step id never drive the cascade")
	require.Equal(t, domain.MissionRunning, detail.Mission.Status)
}
