package controlplane

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/orchestration/events"
	"github.com/crabitat/crabitat/internal/workflow"
)

// expandWorkflow materializes a manifest into task rows for the mission:
// one task per step, blocked when the step has dependencies, plus the
// dependency edges once every task exists. Emits task_created per row.
func (s *Service) expandWorkflow(ctx context.Context, tx *sql.Tx, out *sink, m *workflow.Manifest, mission domain.Mission) error {
	now := domain.NowMS()
	worktree := domain.MissionWorktree(mission.MissionID)
	idByStep := make(map[string]string, len(m.Steps))

	for _, step := range m.Steps {
		status := domain.TaskQueued
		if len(step.DependsOn) > 0 {
			status = domain.TaskBlocked
		}
		prompt := workflow.RenderPrompt(step.PromptTemplate, mission.Prompt, "", worktree)

		task := domain.Task{
			TaskID:      domain.NewID(),
			MissionID:   mission.MissionID,
			Title:       "[" + step.ID + "] " + step.Role,
			Status:      status,
			StepID:      &step.ID,
			Role:        &step.Role,
			Prompt:      &prompt,
			CreatedAtMS: now,
			UpdatedAtMS: now,
		}
		if seed, ok := stepSeedContext(step); ok {
			task.Context = &seed
		}
		if step.MaxRetries > 0 {
			budget := int64(step.MaxRetries)
			task.MaxRetries = &budget
		}

		if err := sqlite.InsertTask(ctx, tx, task); err != nil {
			return err
		}
		idByStep[step.ID] = task.TaskID
		out.event(events.TaskCreated(task))
	}

	for _, step := range m.Steps {
		for _, dep := range step.DependsOn {
			depID, ok := idByStep[dep]
			if !ok {
				// A dependency naming a step outside the manifest
				// produces no edge.
				continue
			}
			if err := sqlite.InsertTaskDep(ctx, tx, idByStep[step.ID], depID); err != nil {
				return err
			}
		}
	}
	return nil
}

// stepSeedContext builds the JSON context a task starts with. Only steps
// with a condition or a retry budget get one; the cascade reads both
// keys back out before it replaces the context with dependency output.
func stepSeedContext(step workflow.Step) (string, bool) {
	seed := make(map[string]any, 2)
	if step.Condition != "" {
		seed["_condition"] = step.Condition
	}
	if step.MaxRetries > 0 {
		seed["_max_retries"] = step.MaxRetries
	}
	if len(seed) == 0 {
		return "", false
	}
	raw, err := json.Marshal(seed)
	if err != nil {
		return "", false
	}
	return string(raw), true
}
