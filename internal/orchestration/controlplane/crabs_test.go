package controlplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/testutil"
)

func TestRegisterCrab_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.RegisterCrab(ctx, RegisterCrabRequest{Name: "pinchy", Role: "coder"})
	require.EqualError(t, err, "crab_id, name, and role are required")

	_, err = h.svc.RegisterCrab(ctx, RegisterCrabRequest{CrabID: "crab-1", Name: "   ", Role: "coder"})
	require.EqualError(t, err, "crab_id, name, and role are required")

	_, err = h.svc.RegisterCrab(ctx, RegisterCrabRequest{
		CrabID: "crab-1", Name: "pinchy", Role: "coder", ColonyID: "ghost",
	})
	require.EqualError(t, err, "colony_id not found")
}

func TestRegisterCrab_NewCrabDefaults(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).WithColony("col-1").Build()

	crab, err := h.svc.RegisterCrab(context.Background(), RegisterCrabRequest{
		CrabID: "crab-1", Name: "pinchy", Role: "coder", ColonyID: "col-1",
	})
	require.NoError(t, err)
	require.Equal(t, domain.CrabIdle, crab.State)
	require.Equal(t, "col-1", crab.ColonyID)
	require.Equal(t, "pinchy", crab.Name)
	require.Equal(t, "coder", crab.Role)
	require.Nil(t, crab.CurrentTaskID)
	require.Greater(t, crab.UpdatedAtMS, int64(0))
}

func TestRegisterCrab_StateFollowsRequest(t *testing.T) {
	h := newHarness(t)

	busy := "busy"
	crab, err := h.svc.RegisterCrab(context.Background(), RegisterCrabRequest{
		CrabID: "crab-1", Name: "pinchy", Role: "coder", State: &busy,
	})
	require.NoError(t, err)
	require.Equal(t, domain.CrabBusy, crab.State)

	// Unknown state strings fall back to idle rather than erroring.
	weird := "moulting"
	crab, err = h.svc.RegisterCrab(context.Background(), RegisterCrabRequest{
		CrabID: "crab-1", Name: "pinchy", Role: "coder", State: &weird,
	})
	require.NoError(t, err)
	require.Equal(t, domain.CrabIdle, crab.State)
}

func TestRegisterCrab_RoleUniquePerColony(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithStandardCrew().
		WithColony("col-2").
		Build()
	ctx := context.Background()

	_, err := h.svc.RegisterCrab(ctx, RegisterCrabRequest{
		CrabID: "crab-2", Name: "clone", Role: "coder", ColonyID: "col-1",
	})
	require.EqualError(t, err, `role "coder" is already taken in this colony`)
	require.Equal(t, CodeBadRequest, CodeOf(err))

	// The crab holding the role can re-register without tripping the check.
	_, err = h.svc.RegisterCrab(ctx, RegisterCrabRequest{
		CrabID: "crab-coder", Name: "crab-coder", Role: "coder", ColonyID: "col-1",
	})
	require.NoError(t, err)

	// The same role is free in another colony and in the unbound pool.
	_, err = h.svc.RegisterCrab(ctx, RegisterCrabRequest{
		CrabID: "crab-far", Name: "far", Role: "coder", ColonyID: "col-2",
	})
	require.NoError(t, err)
	_, err = h.svc.RegisterCrab(ctx, RegisterCrabRequest{
		CrabID: "crab-free", Name: "free", Role: "coder",
	})
	require.NoError(t, err)

	// Any number of wildcard crabs may share a colony.
	_, err = h.svc.RegisterCrab(ctx, RegisterCrabRequest{
		CrabID: "crab-any-1", Name: "a1", Role: "any", ColonyID: "col-1",
	})
	require.NoError(t, err)
	_, err = h.svc.RegisterCrab(ctx, RegisterCrabRequest{
		CrabID: "crab-any-2", Name: "a2", Role: "any", ColonyID: "col-1",
	})
	require.NoError(t, err)
}

func TestRegisterCrab_ReRegistrationKeepsColonyAndWork(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithColony("col-2").
		WithMission("mis-1").
		WithTask("t-1", "mis-1", testutil.TaskState(domain.TaskRunning), testutil.AssignedTo("crab-1")).
		WithCrab("crab-1", testutil.WorkingOn("t-1", "run-1")).
		Build()

	crab, err := h.svc.RegisterCrab(context.Background(), RegisterCrabRequest{
		CrabID: "crab-1", Name: "renamed", Role: "coder", ColonyID: "col-2",
	})
	require.NoError(t, err)
	require.Equal(t, "col-1", crab.ColonyID,
		"a reconnect cannot move the crab to another colony")
	require.Equal(t, "renamed", crab.Name)
	require.Equal(t, "t-1", *crab.CurrentTaskID,
		"in-flight work survives a reconnect")
	require.Equal(t, "run-1", *crab.CurrentRunID)
}

func TestTouchCrab(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithCrab("crab-1").
		Build()

	before := h.crab(t, "crab-1").UpdatedAtMS
	require.NoError(t, h.svc.TouchCrab(context.Background(), "crab-1"))
	require.Greater(t, h.crab(t, "crab-1").UpdatedAtMS, before)

	require.NoError(t, h.svc.TouchCrab(context.Background(), "ghost"),
		"heartbeats from unknown crabs are ignored")
}

func TestCrabDisconnected(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithMission("mis-1").
		WithTask("t-1", "mis-1", testutil.TaskState(domain.TaskRunning), testutil.AssignedTo("crab-1")).
		WithCrab("crab-1", testutil.WorkingOn("t-1", "run-1")).
		Build()

	require.NoError(t, h.svc.CrabDisconnected(context.Background(), "crab-1"))

	crab := h.crab(t, "crab-1")
	require.Equal(t, domain.CrabOffline, crab.State)
	require.Nil(t, crab.CurrentTaskID)
	require.Nil(t, crab.CurrentRunID)

	require.NoError(t, h.svc.CrabDisconnected(context.Background(), "ghost"))
}

func TestListCrabs_OrderedByID(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).
		WithColony("col-1").
		WithCrab("crab-z").
		WithCrab("crab-a", testutil.Role("any")).
		Build()

	crabs, err := h.svc.ListCrabs(context.Background())
	require.NoError(t, err)
	require.Len(t, crabs, 2)
	require.Equal(t, "crab-a", crabs[0].CrabID)
	require.Equal(t, "crab-z", crabs[1].CrabID)
}
