package controlplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/protocol"
	"github.com/crabitat/crabitat/internal/testutil"
)

// register is a shorthand for registering a crab in a colony, which also
// runs a scheduler tick.
func (h *harness) register(t *testing.T, crabID, role, colonyID string) domain.Crab {
	t.Helper()
	crab, err := h.svc.RegisterCrab(context.Background(), RegisterCrabRequest{
		CrabID:   crabID,
		Name:     crabID,
		Role:     role,
		ColonyID: colonyID,
	})
	require.NoError(t, err, "Failed to register crab %s", crabID)
	return crab
}

func TestSchedule_PrefersExactRoleMatch(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithCrab("crab-any", testutil.Role("any")).
		WithMission("mis-1").
		WithTask("t-1", "mis-1", testutil.Step("implement", "coder")).
		Build()

	h.register(t, "crab-coder", "coder", "col-1")

	task := stepTask(t, h.mission(t, "mis-1"), "implement")
	require.Equal(t, domain.TaskAssigned, task.Status)
	require.Equal(t, "crab-coder", *task.AssignedCrabID,
		"an exact role match beats the wildcard crab")
	require.Equal(t, domain.CrabIdle, h.crab(t, "crab-any").State)
	require.Equal(t, domain.CrabBusy, h.crab(t, "crab-coder").State)
}

func TestSchedule_WildcardCrabTakesAnyRole(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithTask("t-1", "mis-1", testutil.Step("review", "reviewer")).
		Build()

	h.register(t, "crab-any", "any", "col-1")

	task := stepTask(t, h.mission(t, "mis-1"), "review")
	require.Equal(t, domain.TaskAssigned, task.Status)
	require.Equal(t, "crab-any", *task.AssignedCrabID)
}

func TestSchedule_NoRoleMatchLeavesTaskQueued(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithTask("t-1", "mis-1", testutil.Step("implement", "coder")).
		Build()

	h.register(t, "crab-rev", "reviewer", "col-1")

	task := stepTask(t, h.mission(t, "mis-1"), "implement")
	require.Equal(t, domain.TaskQueued, task.Status)
	require.Equal(t, domain.CrabIdle, h.crab(t, "crab-rev").State)
}

func TestSchedule_ColonyConfinement(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithColony("col-2").
		WithMission("mis-1", testutil.MissionColony("col-1")).
		WithTask("t-1", "mis-1", testutil.Step("implement", "coder")).
		Build()

	h.register(t, "crab-far", "coder", "col-2")
	task := stepTask(t, h.mission(t, "mis-1"), "implement")
	require.Equal(t, domain.TaskQueued, task.Status,
		"a crab bound elsewhere never works this colony's missions")

	h.register(t, "crab-free", "coder", "")
	task = stepTask(t, h.mission(t, "mis-1"), "implement")
	require.Equal(t, domain.TaskAssigned, task.Status)
	require.Equal(t, "crab-free", *task.AssignedCrabID,
		"an unbound crab serves every colony")
}

func TestSchedule_PerMissionMutex(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithTask("t-run", "mis-1", testutil.Step("implement", "coder"),
			testutil.TaskState(domain.TaskRunning), testutil.AssignedTo("crab-x")).
		WithTask("t-q", "mis-1", testutil.Step("review", "reviewer")).
		WithTask("t-adhoc", "mis-1").
		Build()

	h.register(t, "crab-reviewer", "reviewer", "col-1")

	detail := h.mission(t, "mis-1")
	require.Equal(t, domain.TaskQueued, stepTask(t, detail, "review").Status,
		"a second workflow task must not run while the mission's worktree is in use")

	adhoc := taskByID(t, detail, "t-adhoc")
	require.Equal(t, domain.TaskAssigned, adhoc.Status,
		"ad-hoc tasks ignore the per-mission mutex")
	require.Equal(t, "crab-reviewer", *adhoc.AssignedCrabID)
}

func TestSchedule_SkipsMergeWait(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithTask("t-mw", "mis-1", testutil.Step("merge-wait", "any")).
		Build()

	h.register(t, "crab-any", "any", "col-1")

	task := stepTask(t, h.mission(t, "mis-1"), "merge-wait")
	require.Equal(t, domain.TaskQueued, task.Status)
	require.Equal(t, domain.CrabIdle, h.crab(t, "crab-any").State)
}

func TestSchedule_DispatchesAssignmentEnvelope(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1",
			testutil.MissionPrompt("fix the bug"),
			testutil.Worktree("burrows/mission-mis-1")).
		WithTask("t-1", "mis-1",
			testutil.TaskTitle("[implement] coder"),
			testutil.Step("implement", "coder"),
			testutil.TaskPrompt("do the implementation")).
		Build()

	sess := h.sessions.Attach("crab-1")
	t.Cleanup(func() { h.sessions.Detach(sess) })

	h.register(t, "crab-1", "coder", "col-1")

	var env protocol.Envelope
	select {
	case env = <-sess.Outbound():
	default:
		t.Fatal("no assignment envelope was dispatched")
	}

	require.Equal(t, protocol.KindTaskAssigned, env.Kind.Type)
	require.Equal(t, "control-plane", env.From)
	require.Equal(t, "crab-1", env.To)
	require.Equal(t, "t-1", *env.TaskID)
	require.Equal(t, "mis-1", *env.MissionID)

	payload, err := protocol.DecodePayload[protocol.TaskAssigned](env.Kind)
	require.NoError(t, err)
	require.Equal(t, "t-1", payload.TaskID)
	require.Equal(t, "mis-1", payload.MissionID)
	require.Equal(t, "[implement] coder", payload.Title)
	require.Equal(t, "fix the bug", payload.MissionPrompt)
	require.Equal(t, string(domain.TaskRunning), payload.DesiredStatus)
	require.Equal(t, "implement", *payload.StepID)
	require.Equal(t, "coder", *payload.Role)
	require.Equal(t, "do the implementation", *payload.Prompt)
	require.Equal(t, "burrows/mission-mis-1", *payload.WorktreePath)
}

func TestSchedule_OldestTaskFirst(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithMission("mis-2").
		WithTask("t-old", "mis-1").
		WithTask("t-new", "mis-2").
		Build()

	h.register(t, "crab-1", "any", "col-1")

	require.Equal(t, domain.TaskAssigned, taskByID(t, h.mission(t, "mis-1"), "t-old").Status,
		"the older queued task wins the only idle crab")
	require.Equal(t, domain.TaskQueued, taskByID(t, h.mission(t, "mis-2"), "t-new").Status)
}
