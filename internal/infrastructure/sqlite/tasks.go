package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crabitat/crabitat/internal/domain"
)

// taskColumns is the list of columns selected for task queries.
const taskColumns = `task_id, mission_id, title, assigned_crab_id, status, step_id, role,
	prompt, context, max_retries, created_at_ms, updated_at_ms`

func scanTask(scanner interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var status string
	err := scanner.Scan(&t.TaskID, &t.MissionID, &t.Title, &t.AssignedCrabID, &status,
		&t.StepID, &t.Role, &t.Prompt, &t.Context, &t.MaxRetries, &t.CreatedAtMS, &t.UpdatedAtMS)
	if err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.ParseTaskStatus(status)
	return t, nil
}

// InsertTask persists a new task.
func InsertTask(ctx context.Context, q Querier, t domain.Task) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO tasks (task_id, mission_id, title, assigned_crab_id, status, step_id, role,
			prompt, context, max_retries, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.MissionID, t.Title, t.AssignedCrabID, string(t.Status), t.StepID, t.Role,
		t.Prompt, t.Context, t.MaxRetries, t.CreatedAtMS, t.UpdatedAtMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask fetches one task by id.
func GetTask(ctx context.Context, q Querier, id string) (domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns every task, most recently updated first.
func ListTasks(ctx context.Context, q Querier) ([]domain.Task, error) {
	return queryTasks(ctx, q,
		`SELECT `+taskColumns+` FROM tasks ORDER BY updated_at_ms DESC`)
}

// ListTasksByMission returns a mission's tasks in creation order.
func ListTasksByMission(ctx context.Context, q Querier, missionID string) ([]domain.Task, error) {
	return queryTasks(ctx, q,
		`SELECT `+taskColumns+` FROM tasks WHERE mission_id = ?
		 ORDER BY created_at_ms ASC, rowid ASC`, missionID)
}

// ListQueuedTasks returns queued tasks oldest first, the order the
// scheduler considers them in. Tasks created in one workflow expansion
// share a timestamp; insertion order breaks the tie.
func ListQueuedTasks(ctx context.Context, q Querier) ([]domain.Task, error) {
	return queryTasks(ctx, q,
		`SELECT `+taskColumns+` FROM tasks WHERE status = 'queued'
		 ORDER BY created_at_ms ASC, rowid ASC`)
}

// ListMergeWaitTasks returns queued merge-wait tasks for the poller.
func ListMergeWaitTasks(ctx context.Context, q Querier) ([]domain.Task, error) {
	return queryTasks(ctx, q,
		`SELECT `+taskColumns+` FROM tasks WHERE step_id = 'merge-wait' AND status = 'queued'
		 ORDER BY created_at_ms ASC, rowid ASC`)
}

func queryTasks(ctx context.Context, q Querier, query string, args ...any) ([]domain.Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTaskStatus sets a task's status and bumps its updated time.
func UpdateTaskStatus(ctx context.Context, q Querier, taskID string, status domain.TaskStatus, now int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at_ms = ? WHERE task_id = ?`,
		string(status), now, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// AssignTask hands a queued task to a crab.
func AssignTask(ctx context.Context, q Querier, taskID, crabID string, now int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE tasks SET status = 'assigned', assigned_crab_id = ?, updated_at_ms = ?
		 WHERE task_id = ?`, crabID, now, taskID)
	if err != nil {
		return fmt.Errorf("failed to assign task: %w", err)
	}
	return nil
}

// SetTaskRunning marks a task running under the given crab.
func SetTaskRunning(ctx context.Context, q Querier, taskID, crabID string, now int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE tasks SET status = 'running', assigned_crab_id = ?, updated_at_ms = ?
		 WHERE task_id = ?`, crabID, now, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task running: %w", err)
	}
	return nil
}

// UpdateTaskContext replaces a task's context payload.
func UpdateTaskContext(ctx context.Context, q Querier, taskID string, context *string, now int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE tasks SET context = ?, updated_at_ms = ? WHERE task_id = ?`,
		context, now, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task context: %w", err)
	}
	return nil
}

// InsertTaskDep records that taskID depends on dependsOn.
func InsertTaskDep(ctx context.Context, q Querier, taskID, dependsOn string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_deps (task_id, depends_on_task_id) VALUES (?, ?)`,
		taskID, dependsOn)
	if err != nil {
		return fmt.Errorf("failed to insert task dependency: %w", err)
	}
	return nil
}

// ListDependencyIDs returns the ids of the tasks taskID depends on.
func ListDependencyIDs(ctx context.Context, q Querier, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT depends_on_task_id FROM task_deps WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task dependencies: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dependency id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListDirectDependents returns the tasks that depend on taskID, in
// creation order.
func ListDirectDependents(ctx context.Context, q Querier, taskID string) ([]domain.Task, error) {
	return queryTasks(ctx, q,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE task_id IN (SELECT task_id FROM task_deps WHERE depends_on_task_id = ?)
		 ORDER BY created_at_ms ASC, rowid ASC`, taskID)
}

// ListDependencies returns the tasks taskID depends on, in creation
// order. The accumulated context renders dependency summaries in this
// order.
func ListDependencies(ctx context.Context, q Querier, taskID string) ([]domain.Task, error) {
	return queryTasks(ctx, q,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE task_id IN (SELECT depends_on_task_id FROM task_deps WHERE task_id = ?)
		 ORDER BY created_at_ms ASC, rowid ASC`, taskID)
}

// BusyMissionIDs returns the set of missions that currently have a task
// assigned or running. Used to enforce one in-flight task per mission.
func BusyMissionIDs(ctx context.Context, q Querier) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT mission_id FROM tasks WHERE status IN ('assigned', 'running')`)
	if err != nil {
		return nil, fmt.Errorf("failed to list busy missions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan mission id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// TaskStats summarizes a mission's task statuses for roll-up decisions.
type TaskStats struct {
	Total       int
	NonTerminal int
	Failed      int
}

// MissionTaskStats counts a mission's tasks by terminal state.
func MissionTaskStats(ctx context.Context, q Querier, missionID string) (TaskStats, error) {
	var s TaskStats
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status NOT IN ('completed', 'failed', 'skipped') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		 FROM tasks WHERE mission_id = ?`, missionID,
	).Scan(&s.Total, &s.NonTerminal, &s.Failed)
	if err != nil {
		return TaskStats{}, fmt.Errorf("failed to count mission tasks: %w", err)
	}
	return s, nil
}
