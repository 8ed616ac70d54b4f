package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crabitat/crabitat/internal/domain"
)

// runColumns is the list of columns selected for run queries.
const runColumns = `run_id, mission_id, task_id, crab_id, status, burrow_path, burrow_mode,
	progress_message, summary, prompt_tokens, completion_tokens, total_tokens,
	first_token_ms, llm_duration_ms, execution_duration_ms, end_to_end_ms,
	started_at_ms, updated_at_ms, completed_at_ms`

func scanRun(scanner interface{ Scan(...any) error }) (domain.Run, error) {
	var r domain.Run
	var status, mode string
	err := scanner.Scan(&r.RunID, &r.MissionID, &r.TaskID, &r.CrabID, &status, &r.BurrowPath,
		&mode, &r.ProgressMessage, &r.Summary,
		&r.Metrics.PromptTokens, &r.Metrics.CompletionTokens, &r.Metrics.TotalTokens,
		&r.Metrics.FirstTokenMS, &r.Metrics.LLMDurationMS, &r.Metrics.ExecutionDurationMS,
		&r.Metrics.EndToEndMS,
		&r.StartedAtMS, &r.UpdatedAtMS, &r.CompletedAtMS)
	if err != nil {
		return domain.Run{}, err
	}
	r.Status = domain.ParseRunStatus(status)
	r.BurrowMode = domain.ParseBurrowMode(mode)
	return r, nil
}

// InsertRun persists a new run.
func InsertRun(ctx context.Context, q Querier, r domain.Run) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO runs (run_id, mission_id, task_id, crab_id, status, burrow_path, burrow_mode,
			progress_message, summary, prompt_tokens, completion_tokens, total_tokens,
			first_token_ms, llm_duration_ms, execution_duration_ms, end_to_end_ms,
			started_at_ms, updated_at_ms, completed_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.MissionID, r.TaskID, r.CrabID, string(r.Status), r.BurrowPath,
		string(r.BurrowMode), r.ProgressMessage, r.Summary,
		r.Metrics.PromptTokens, r.Metrics.CompletionTokens, r.Metrics.TotalTokens,
		r.Metrics.FirstTokenMS, r.Metrics.LLMDurationMS, r.Metrics.ExecutionDurationMS,
		r.Metrics.EndToEndMS,
		r.StartedAtMS, r.UpdatedAtMS, r.CompletedAtMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRun fetches one run by id.
func GetRun(ctx context.Context, q Querier, id string) (domain.Run, error) {
	row := q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, ErrRunNotFound
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns every run, most recently updated first.
func ListRuns(ctx context.Context, q Querier) ([]domain.Run, error) {
	return queryRuns(ctx, q,
		`SELECT `+runColumns+` FROM runs ORDER BY updated_at_ms DESC`)
}

// ListRunsByMission returns a mission's runs oldest first.
func ListRunsByMission(ctx context.Context, q Querier, missionID string) ([]domain.Run, error) {
	return queryRuns(ctx, q,
		`SELECT `+runColumns+` FROM runs WHERE mission_id = ?
		 ORDER BY started_at_ms ASC, run_id ASC`, missionID)
}

// ListCompletedRunsByMission returns a mission's completed runs, most
// recently completed first.
func ListCompletedRunsByMission(ctx context.Context, q Querier, missionID string) ([]domain.Run, error) {
	return queryRuns(ctx, q,
		`SELECT `+runColumns+` FROM runs WHERE mission_id = ? AND status = 'completed'
		 ORDER BY completed_at_ms DESC, run_id DESC`, missionID)
}

func queryRuns(ctx context.Context, q Querier, query string, args ...any) ([]domain.Run, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestCompletedRunForTask returns the most recent completed run of a
// task, if one exists.
func LatestCompletedRunForTask(ctx context.Context, q Querier, taskID string) (domain.Run, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE task_id = ? AND status = 'completed'
		 ORDER BY completed_at_ms DESC, run_id DESC LIMIT 1`, taskID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, false, nil
	}
	if err != nil {
		return domain.Run{}, false, fmt.Errorf("failed to get latest run: %w", err)
	}
	return r, true, nil
}

// CountCompletedRunsForTask counts how many completed runs a task has
// accumulated, used to enforce retry budgets.
func CountCompletedRunsForTask(ctx context.Context, q Querier, taskID string) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE task_id = ? AND status = 'completed'`, taskID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed runs: %w", err)
	}
	return n, nil
}

// UpdateRunRow writes back every mutable run field.
func UpdateRunRow(ctx context.Context, q Querier, r domain.Run) error {
	_, err := q.ExecContext(ctx,
		`UPDATE runs SET status = ?, progress_message = ?, summary = ?,
			prompt_tokens = ?, completion_tokens = ?, total_tokens = ?,
			first_token_ms = ?, llm_duration_ms = ?, execution_duration_ms = ?, end_to_end_ms = ?,
			updated_at_ms = ?, completed_at_ms = ?
		 WHERE run_id = ?`,
		string(r.Status), r.ProgressMessage, r.Summary,
		r.Metrics.PromptTokens, r.Metrics.CompletionTokens, r.Metrics.TotalTokens,
		r.Metrics.FirstTokenMS, r.Metrics.LLMDurationMS, r.Metrics.ExecutionDurationMS,
		r.Metrics.EndToEndMS,
		r.UpdatedAtMS, r.CompletedAtMS,
		r.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// AvgEndToEndMS averages end-to-end duration across all completed runs.
// Runs that never reported the metric count as zero. Returns nil when no
// run has completed yet.
func AvgEndToEndMS(ctx context.Context, q Querier) (*int64, error) {
	var count, sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(COALESCE(end_to_end_ms, 0)), 0) FROM runs
		 WHERE status = 'completed'`,
	).Scan(&count, &sum)
	if err != nil {
		return nil, fmt.Errorf("failed to average run durations: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	avg := sum / count
	return &avg, nil
}
