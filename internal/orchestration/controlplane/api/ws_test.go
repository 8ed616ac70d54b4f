package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/orchestration/controlplane"
	"github.com/crabitat/crabitat/internal/orchestration/events"
	"github.com/crabitat/crabitat/internal/protocol"
)

// wsFixture starts a live test server around the fixture's routes.
func wsFixture(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	server := httptest.NewServer(f.handler.Routes())
	t.Cleanup(server.Close)
	return f, server
}

// dialWS connects to a websocket path on the test server.
func dialWS(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "Failed to dial %s", path)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads one envelope frame with a deadline.
func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env protocol.Envelope
	require.NoError(t, conn.ReadJSON(&env), "Failed to read envelope")
	return env
}

// readFrame reads one raw frame with a deadline.
func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read frame")
	return data
}

// crabByID finds a crab through the service, or false when missing.
func (f *fixture) crabByID(crabID string) (domain.Crab, bool) {
	crabs, err := f.svc.ListCrabs(context.Background())
	if err != nil {
		return domain.Crab{}, false
	}
	for _, crab := range crabs {
		if crab.CrabID == crabID {
			return crab, true
		}
	}
	return domain.Crab{}, false
}

func TestCrabSocket_AssignmentReachesWorker(t *testing.T) {
	f, server := wsFixture(t)
	colony := f.createColony(t, "reef", "crabitat/sandbox")
	mission := f.createMission(t, colony.ColonyID, "fix the bug", "dev-task")

	conn := dialWS(t, server, "/v1/ws/crab/crab-planner")
	require.Eventually(t, func() bool {
		return f.sessions.Connected("crab-planner")
	}, 2*time.Second, 5*time.Millisecond, "session never attached")

	// Registering the planner lets the scheduler hand it the plan task,
	// and the envelope must arrive on the open socket.
	_, err := f.svc.RegisterCrab(context.Background(), controlplane.RegisterCrabRequest{
		CrabID:   "crab-planner",
		Name:     "crab-planner",
		Role:     "planner",
		ColonyID: colony.ColonyID,
	})
	require.NoError(t, err, "Failed to register crab")

	env := readEnvelope(t, conn)
	assert.Equal(t, protocol.KindTaskAssigned, env.Kind.Type)
	assert.Equal(t, "crab-planner", env.To)
	require.NotNil(t, env.MissionID)
	assert.Equal(t, mission.MissionID, *env.MissionID)

	payload, err := protocol.DecodePayload[protocol.TaskAssigned](env.Kind)
	require.NoError(t, err, "Failed to decode task_assigned payload")
	assert.Equal(t, mission.MissionID, payload.MissionID)
	assert.Equal(t, "fix the bug", payload.MissionPrompt)
	require.NotNil(t, payload.StepID)
	assert.Equal(t, "plan", *payload.StepID)

	// Dropping the socket takes the crab offline.
	conn.Close()
	require.Eventually(t, func() bool {
		crab, ok := f.crabByID("crab-planner")
		return ok && crab.State == domain.CrabOffline
	}, 2*time.Second, 10*time.Millisecond, "crab never went offline")
}

func TestCrabSocket_HeartbeatSurvivesBadFrames(t *testing.T) {
	f, server := wsFixture(t)
	_, err := f.svc.RegisterCrab(context.Background(), controlplane.RegisterCrabRequest{
		CrabID: "crab-1",
		Name:   "crab-1",
		Role:   "coder",
	})
	require.NoError(t, err, "Failed to register crab")
	crab, ok := f.crabByID("crab-1")
	require.True(t, ok)
	before := crab.UpdatedAtMS

	conn := dialWS(t, server, "/v1/ws/crab/crab-1")
	require.Eventually(t, func() bool {
		return f.sessions.Connected("crab-1")
	}, 2*time.Second, 5*time.Millisecond, "session never attached")

	// Junk must be ignored without tearing down the session.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not an envelope")))

	// Registration and heartbeat need distinct millisecond timestamps.
	time.Sleep(5 * time.Millisecond)

	kind, err := protocol.NewKind(protocol.KindHeartbeat, protocol.Heartbeat{CrabID: "crab-1", Healthy: true})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.NewEnvelope("crab-1", "control-plane", kind)))

	require.Eventually(t, func() bool {
		crab, ok := f.crabByID("crab-1")
		return ok && crab.UpdatedAtMS > before
	}, 2*time.Second, 10*time.Millisecond, "heartbeat never touched the crab")
	assert.True(t, f.sessions.Connected("crab-1"))
}

func TestCrabSocket_RunReportsOverSocket(t *testing.T) {
	f, server := wsFixture(t)
	colony := f.createColony(t, "reef", "crabitat/sandbox")
	mission := f.createMission(t, colony.ColonyID, "wire the adapter", "")

	_, err := f.svc.RegisterCrab(context.Background(), controlplane.RegisterCrabRequest{
		CrabID:   "crab-1",
		Name:     "crab-1",
		Role:     "coder",
		ColonyID: colony.ColonyID,
	})
	require.NoError(t, err, "Failed to register crab")

	task, err := f.svc.CreateTask(context.Background(), controlplane.CreateTaskRequest{
		MissionID: mission.MissionID,
		Title:     "wire the adapter",
	})
	require.NoError(t, err, "Failed to create task")

	run, err := f.svc.StartRun(context.Background(), controlplane.StartRunRequest{
		MissionID:  mission.MissionID,
		TaskID:     task.TaskID,
		CrabID:     "crab-1",
		BurrowPath: "/tmp/burrow-1",
	})
	require.NoError(t, err, "Failed to start run")

	conn := dialWS(t, server, "/v1/ws/crab/crab-1")
	require.Eventually(t, func() bool {
		return f.sessions.Connected("crab-1")
	}, 2*time.Second, 5*time.Millisecond, "session never attached")

	progress := "half way"
	kind, err := protocol.NewKind(protocol.KindRunUpdate, protocol.RunUpdate{
		RunID:           run.RunID,
		ProgressMessage: &progress,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.NewEnvelope("crab-1", "control-plane", kind)))

	require.Eventually(t, func() bool {
		detail, err := f.svc.GetMission(context.Background(), mission.MissionID)
		return err == nil && len(detail.Runs) == 1 && detail.Runs[0].ProgressMessage == "half way"
	}, 2*time.Second, 10*time.Millisecond, "run update never landed")

	summary := "adapter wired"
	kind, err = protocol.NewKind(protocol.KindRunComplete, protocol.RunComplete{
		RunID:   run.RunID,
		Status:  domain.RunCompleted,
		Summary: &summary,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.NewEnvelope("crab-1", "control-plane", kind)))

	require.Eventually(t, func() bool {
		detail, err := f.svc.GetMission(context.Background(), mission.MissionID)
		return err == nil && len(detail.Runs) == 1 && detail.Runs[0].Status == domain.RunCompleted
	}, 2*time.Second, 10*time.Millisecond, "run completion never landed")

	// Completing the run frees the crab.
	crab, ok := f.crabByID("crab-1")
	require.True(t, ok)
	assert.Equal(t, domain.CrabIdle, crab.State)
	assert.Nil(t, crab.CurrentRunID)
}

func TestConsoleSocket_SnapshotThenLiveEvents(t *testing.T) {
	f, server := wsFixture(t)
	colony := f.createColony(t, "reef", "crabitat/sandbox")

	conn := dialWS(t, server, "/v1/ws/console")

	var snapshot struct {
		Type          string          `json:"type"`
		GeneratedAtMS int64           `json:"generated_at_ms"`
		Colonies      []domain.Colony `json:"colonies"`
	}
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &snapshot))
	assert.Equal(t, string(events.TypeSnapshot), snapshot.Type)
	assert.Positive(t, snapshot.GeneratedAtMS)
	require.Len(t, snapshot.Colonies, 1)
	assert.Equal(t, colony.ColonyID, snapshot.Colonies[0].ColonyID)

	// The snapshot is written after the subscription starts, so any
	// mutation from here on must arrive as a live frame.
	second, err := f.svc.CreateColony(context.Background(), controlplane.CreateColonyRequest{Name: "tidepool"})
	require.NoError(t, err, "Failed to create colony")

	var ev struct {
		Type   string        `json:"type"`
		Colony domain.Colony `json:"colony"`
	}
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &ev))
	assert.Equal(t, string(events.TypeColonyCreated), ev.Type)
	assert.Equal(t, second.ColonyID, ev.Colony.ColonyID)
	assert.Equal(t, "tidepool", ev.Colony.Name)
}
