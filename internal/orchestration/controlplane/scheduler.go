package controlplane

import (
	"context"
	"database/sql"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
	"github.com/crabitat/crabitat/internal/protocol"
)

// schedule pairs queued tasks with idle crabs and queues assignment
// envelopes on the sink. It runs at the tail of every mutating
// transaction, after the cascade and queue activation have settled.
//
// Tasks are considered oldest first. Merge-wait tasks belong to the
// poller, and a workflow task waits while any task of its mission is
// assigned or running: one worktree, one writer.
func (s *Service) schedule(ctx context.Context, tx *sql.Tx, out *sink) error {
	tasks, err := sqlite.ListQueuedTasks(ctx, tx)
	if err != nil || len(tasks) == 0 {
		return err
	}
	idle, err := sqlite.ListIdleCrabs(ctx, tx)
	if err != nil || len(idle) == 0 {
		return err
	}
	busy, err := sqlite.BusyMissionIDs(ctx, tx)
	if err != nil {
		return err
	}

	missions := make(map[string]domain.Mission)
	for _, task := range tasks {
		if len(idle) == 0 {
			break
		}
		if task.StepID != nil && *task.StepID == stepMergeWait {
			continue
		}
		if task.StepID != nil && busy[task.MissionID] {
			continue
		}

		mission, ok := missions[task.MissionID]
		if !ok {
			mission, err = sqlite.GetMission(ctx, tx, task.MissionID)
			if err != nil {
				return err
			}
			missions[task.MissionID] = mission
		}

		idx := matchCrab(idle, task, mission)
		if idx < 0 {
			continue
		}
		crab := idle[idx]
		idle = append(idle[:idx], idle[idx+1:]...)

		if err := s.assign(ctx, tx, out, task, crab, mission); err != nil {
			return err
		}
		busy[task.MissionID] = true
	}
	return nil
}

// matchCrab picks an idle crab for the task: exact role match first,
// then the "any" wildcard on either side. A crab bound to a different
// colony than the task's mission never matches; an unbound crab serves
// every colony.
func matchCrab(idle []domain.Crab, task domain.Task, mission domain.Mission) int {
	role := "any"
	if task.Role != nil && *task.Role != "" {
		role = *task.Role
	}
	eligible := func(c domain.Crab) bool {
		return c.ColonyID == "" || mission.ColonyID == "" || c.ColonyID == mission.ColonyID
	}
	for i, c := range idle {
		if eligible(c) && c.Role == role {
			return i
		}
	}
	for i, c := range idle {
		if !eligible(c) {
			continue
		}
		if role == "any" || c.Role == "any" {
			return i
		}
	}
	return -1
}

// assign binds the task to the crab and queues the assignment envelope.
func (s *Service) assign(ctx context.Context, tx *sql.Tx, out *sink, task domain.Task, crab domain.Crab, mission domain.Mission) error {
	now := domain.NowMS()
	if err := sqlite.AssignTask(ctx, tx, task.TaskID, crab.CrabID, now); err != nil {
		return err
	}
	if err := sqlite.SetCrabState(ctx, tx, crab.CrabID, domain.CrabBusy, &task.TaskID, nil, now); err != nil {
		return err
	}

	task.Status = domain.TaskAssigned
	task.AssignedCrabID = &crab.CrabID
	task.UpdatedAtMS = now
	crab.State = domain.CrabBusy
	crab.CurrentTaskID = &task.TaskID
	crab.UpdatedAtMS = now
	out.event(events.TaskUpdated(task))
	out.event(events.CrabUpdated(crab))

	env, err := assignmentEnvelope(task, crab, mission)
	if err != nil {
		return err
	}
	log.Info(log.CatSched, "Assigned task",
		"task", task.TaskID, "crab", crab.CrabID, "mission", task.MissionID)
	out.send(crab.CrabID, env)
	return nil
}

// assignmentEnvelope builds the task_assigned message for a crab.
func assignmentEnvelope(task domain.Task, crab domain.Crab, mission domain.Mission) (protocol.Envelope, error) {
	payload := protocol.TaskAssigned{
		TaskID:        task.TaskID,
		MissionID:     task.MissionID,
		Title:         task.Title,
		MissionPrompt: mission.Prompt,
		DesiredStatus: string(domain.TaskRunning),
		StepID:        task.StepID,
		Role:          task.Role,
		Prompt:        task.Prompt,
		Context:       task.Context,
		WorktreePath:  mission.WorktreePath,
	}
	kind, err := protocol.NewKind(protocol.KindTaskAssigned, payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	env := protocol.NewEnvelope(controlPlaneActor, crab.CrabID, kind)
	env.MissionID = &task.MissionID
	env.TaskID = &task.TaskID
	return env, nil
}
