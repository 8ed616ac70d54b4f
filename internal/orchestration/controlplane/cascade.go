package controlplane

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
)

// Step ids with hardwired cascade behavior.
const (
	stepFix       = "fix"
	stepReview    = "review"
	stepPR        = "pr"
	stepMergeWait = "merge-wait"
)

// cascade advances a mission's DAG after the task with settledTaskID
// reached a terminal status. It unblocks dependents whose dependencies
// are settled, evaluates skip conditions, drives the review retry loop,
// captures PR numbers, and finally rolls the mission up. Runs inside
// the caller's transaction.
func (s *Service) cascade(ctx context.Context, tx *sql.Tx, out *sink, missionID, settledTaskID string) error {
	task, err := sqlite.GetTask(ctx, tx, settledTaskID)
	if err != nil {
		return err
	}
	// Ad-hoc tasks live outside the workflow DAG.
	if task.StepID == nil {
		return nil
	}

	if task.Status == domain.TaskFailed {
		if err := s.failDependents(ctx, tx, out, task.TaskID); err != nil {
			return err
		}
		return s.rollupMission(ctx, tx, out, missionID)
	}

	ctxMap, err := missionContext(ctx, tx, missionID)
	if err != nil {
		return err
	}

	dependents, err := sqlite.ListDirectDependents(ctx, tx, task.TaskID)
	if err != nil {
		return err
	}
	for _, dep := range dependents {
		if dep.Status != domain.TaskBlocked {
			continue
		}
		settled, err := dependenciesSettled(ctx, tx, dep.TaskID)
		if err != nil {
			return err
		}
		if !settled {
			continue
		}

		cond, hasCond := taskCondition(dep)
		if !hasCond || domain.EvaluateCondition(cond, ctxMap) {
			if err := s.queueTask(ctx, tx, out, dep.TaskID); err != nil {
				return err
			}
		} else {
			log.Debug(log.CatCascade, "Condition false, skipping task",
				"task", dep.TaskID, "condition", cond)
			if err := setTaskStatus(ctx, tx, out, dep.TaskID, domain.TaskSkipped); err != nil {
				return err
			}
			// A skipped task settles its own dependents.
			if err := s.cascade(ctx, tx, out, missionID, dep.TaskID); err != nil {
				return err
			}
		}
	}

	if task.Status == domain.TaskCompleted && *task.StepID == stepFix {
		if err := s.requeueReview(ctx, tx, out, missionID); err != nil {
			return err
		}
	}
	if task.Status == domain.TaskCompleted && *task.StepID == stepPR {
		if err := s.capturePRNumber(ctx, tx, out, missionID, ctxMap); err != nil {
			return err
		}
	}

	return s.rollupMission(ctx, tx, out, missionID)
}

// failDependents marks every transitive dependent of taskID failed.
func (s *Service) failDependents(ctx context.Context, tx *sql.Tx, out *sink, taskID string) error {
	dependents, err := sqlite.ListDirectDependents(ctx, tx, taskID)
	if err != nil {
		return err
	}
	for _, dep := range dependents {
		if dep.Status.Terminal() {
			continue
		}
		if err := setTaskStatus(ctx, tx, out, dep.TaskID, domain.TaskFailed); err != nil {
			return err
		}
		if err := s.failDependents(ctx, tx, out, dep.TaskID); err != nil {
			return err
		}
	}
	return nil
}

// queueTask moves a blocked task to queued and hands it the accumulated
// context assembled from its dependencies' run summaries.
func (s *Service) queueTask(ctx context.Context, tx *sql.Tx, out *sink, taskID string) error {
	acc, err := accumulatedContext(ctx, tx, taskID)
	if err != nil {
		return err
	}
	now := domain.NowMS()
	if err := sqlite.UpdateTaskContext(ctx, tx, taskID, &acc, now); err != nil {
		return err
	}
	if err := sqlite.UpdateTaskStatus(ctx, tx, taskID, domain.TaskQueued, now); err != nil {
		return err
	}
	task, err := sqlite.GetTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	out.event(events.TaskUpdated(task))
	return nil
}

// setTaskStatus applies a bare status change and emits task_updated.
func setTaskStatus(ctx context.Context, tx *sql.Tx, out *sink, taskID string, status domain.TaskStatus) error {
	if err := sqlite.UpdateTaskStatus(ctx, tx, taskID, status, domain.NowMS()); err != nil {
		return err
	}
	task, err := sqlite.GetTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	out.event(events.TaskUpdated(task))
	return nil
}

// dependenciesSettled reports whether every transitive dependency of
// taskID is completed or skipped.
func dependenciesSettled(ctx context.Context, tx *sql.Tx, taskID string) (bool, error) {
	deps, err := sqlite.ListDependencies(ctx, tx, taskID)
	if err != nil {
		return false, err
	}
	for _, dep := range deps {
		if dep.Status != domain.TaskCompleted && dep.Status != domain.TaskSkipped {
			return false, nil
		}
		ok, err := dependenciesSettled(ctx, tx, dep.TaskID)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// missionContext builds the condition-evaluation map from the mission's
// completed runs, newest first. Each step contributes
// "<step>.summary", plus "<step>.result" when its summary parses as a
// JSON object with a string result field. The newest run wins per key.
func missionContext(ctx context.Context, tx *sql.Tx, missionID string) (map[string]string, error) {
	runs, err := sqlite.ListCompletedRunsByMission(ctx, tx, missionID)
	if err != nil {
		return nil, err
	}
	ctxMap := make(map[string]string)
	for _, run := range runs {
		task, err := sqlite.GetTask(ctx, tx, run.TaskID)
		if err != nil {
			return nil, err
		}
		if task.StepID == nil {
			continue
		}
		summary := ""
		if run.Summary != nil {
			summary = *run.Summary
		}
		key := *task.StepID + ".summary"
		if _, seen := ctxMap[key]; !seen {
			ctxMap[key] = summary
		}
		if result, ok := summaryResult(summary); ok {
			key := *task.StepID + ".result"
			if _, seen := ctxMap[key]; !seen {
				ctxMap[key] = result
			}
		}
	}
	return ctxMap, nil
}

// summaryResult extracts the result field from a JSON object summary.
func summaryResult(summary string) (string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(summary), &obj); err != nil {
		return "", false
	}
	result, ok := obj["result"].(string)
	return result, ok
}

// taskCondition reads the _condition key from a task's seed context.
// A context that is not a JSON object (the accumulated Markdown blob,
// for one) carries no condition.
func taskCondition(t domain.Task) (string, bool) {
	if t.Context == nil {
		return "", false
	}
	var seed struct {
		Condition *string `json:"_condition"`
	}
	if err := json.Unmarshal([]byte(*t.Context), &seed); err != nil {
		return "", false
	}
	if seed.Condition == nil {
		return "", false
	}
	return *seed.Condition, true
}

// accumulatedContext renders the Markdown context a newly queued task
// receives: one section per direct dependency, in creation order, under
// the dependency's step id, holding its latest completed run summary.
func accumulatedContext(ctx context.Context, tx *sql.Tx, taskID string) (string, error) {
	deps, err := sqlite.ListDependencies(ctx, tx, taskID)
	if err != nil {
		return "", err
	}
	sections := make([]string, 0, len(deps))
	for _, dep := range deps {
		stepID := "unknown"
		if dep.StepID != nil {
			stepID = *dep.StepID
		}
		summary := "(no summary)"
		run, ok, err := sqlite.LatestCompletedRunForTask(ctx, tx, dep.TaskID)
		if err != nil {
			return "", err
		}
		if ok && run.Summary != nil {
			summary = *run.Summary
		}
		sections = append(sections, "## "+stepID+"\n"+summary)
	}
	return strings.Join(sections, "\n\n"), nil
}

// requeueReview sends the mission's review task back to queued after a
// fix round, unless the review's retry budget is spent, in which case
// the whole mission is failed.
func (s *Service) requeueReview(ctx context.Context, tx *sql.Tx, out *sink, missionID string) error {
	review, ok, err := findStepTask(ctx, tx, missionID, stepReview)
	if err != nil || !ok {
		return err
	}
	if review.Status != domain.TaskCompleted {
		return nil
	}

	if review.MaxRetries != nil {
		rounds, err := sqlite.CountCompletedRunsForTask(ctx, tx, review.TaskID)
		if err != nil {
			return err
		}
		if rounds > *review.MaxRetries {
			log.Warn(log.CatCascade, "Review retry budget exhausted, failing mission",
				"mission", missionID, "rounds", rounds, "budget", *review.MaxRetries)
			return s.failMission(ctx, tx, out, missionID)
		}
	}

	log.Debug(log.CatCascade, "Fix completed, requeueing review",
		"mission", missionID, "task", review.TaskID)
	return setTaskStatus(ctx, tx, out, review.TaskID, domain.TaskQueued)
}

// failMission force-fails every non-terminal task and then the mission
// itself. Rollup alone cannot do this: when the budget runs out on the
// last step, every task is already terminal and none of them failed.
func (s *Service) failMission(ctx context.Context, tx *sql.Tx, out *sink, missionID string) error {
	tasks, err := sqlite.ListTasksByMission(ctx, tx, missionID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		if err := setTaskStatus(ctx, tx, out, t.TaskID, domain.TaskFailed); err != nil {
			return err
		}
	}

	mission, err := sqlite.GetMission(ctx, tx, missionID)
	if err != nil {
		return err
	}
	if mission.Status.Terminal() {
		return nil
	}
	if err := sqlite.UpdateMissionStatus(ctx, tx, missionID, domain.MissionFailed); err != nil {
		return err
	}
	mission.Status = domain.MissionFailed
	log.Info(log.CatCascade, "Mission failed", "mission", missionID)
	out.event(events.MissionUpdated(mission))
	return s.activateColony(ctx, tx, out, mission.ColonyID)
}

// capturePRNumber stores the pull request number a pr step reported via
// its run summary's result field.
func (s *Service) capturePRNumber(ctx context.Context, tx *sql.Tx, out *sink, missionID string, ctxMap map[string]string) error {
	raw, ok := ctxMap[stepPR+".result"]
	if !ok {
		return nil
	}
	number, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil
	}
	if err := sqlite.SetMissionPRNumber(ctx, tx, missionID, number); err != nil {
		return err
	}
	mission, err := sqlite.GetMission(ctx, tx, missionID)
	if err != nil {
		return err
	}
	log.Info(log.CatCascade, "Captured pull request number",
		"mission", missionID, "pr", number)
	out.event(events.MissionUpdated(mission))
	return nil
}

// findStepTask locates the unique task of the mission carrying stepID.
// Reports false when the step is absent or ambiguous.
func findStepTask(ctx context.Context, tx *sql.Tx, missionID, stepID string) (domain.Task, bool, error) {
	tasks, err := sqlite.ListTasksByMission(ctx, tx, missionID)
	if err != nil {
		return domain.Task{}, false, err
	}
	var found domain.Task
	matches := 0
	for _, t := range tasks {
		if t.StepID != nil && *t.StepID == stepID {
			found = t
			matches++
		}
	}
	return found, matches == 1, nil
}

// rollupMission settles the mission once every task is terminal: failed
// when anything failed, completed otherwise. A settled mission frees its
// colony's queue slot.
func (s *Service) rollupMission(ctx context.Context, tx *sql.Tx, out *sink, missionID string) error {
	stats, err := sqlite.MissionTaskStats(ctx, tx, missionID)
	if err != nil {
		return err
	}
	if stats.Total == 0 || stats.NonTerminal > 0 {
		return nil
	}

	status := domain.MissionCompleted
	if stats.Failed > 0 {
		status = domain.MissionFailed
	}
	mission, err := sqlite.GetMission(ctx, tx, missionID)
	if err != nil {
		return err
	}
	if mission.Status.Terminal() || mission.Status == status {
		return nil
	}

	if err := sqlite.UpdateMissionStatus(ctx, tx, missionID, status); err != nil {
		return err
	}
	mission.Status = status
	log.Info(log.CatCascade, "Mission settled", "mission", missionID, "status", status)
	out.event(events.MissionUpdated(mission))

	return s.activateColony(ctx, tx, out, mission.ColonyID)
}
