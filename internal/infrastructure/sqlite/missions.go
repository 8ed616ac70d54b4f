package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crabitat/crabitat/internal/domain"
)

// missionColumns is the list of columns selected for mission queries.
const missionColumns = `mission_id, colony_id, prompt, workflow_name, status, worktree_path,
	queue_position, issue_number, pr_number, created_at_ms`

func scanMission(scanner interface{ Scan(...any) error }) (domain.Mission, error) {
	var m domain.Mission
	var status string
	err := scanner.Scan(&m.MissionID, &m.ColonyID, &m.Prompt, &m.WorkflowName, &status,
		&m.WorktreePath, &m.QueuePosition, &m.IssueNumber, &m.PRNumber, &m.CreatedAtMS)
	if err != nil {
		return domain.Mission{}, err
	}
	m.Status = domain.ParseMissionStatus(status)
	return m, nil
}

// InsertMission persists a new mission.
func InsertMission(ctx context.Context, q Querier, m domain.Mission) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO missions (mission_id, colony_id, prompt, workflow_name, status, worktree_path,
			queue_position, issue_number, pr_number, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MissionID, m.ColonyID, m.Prompt, m.WorkflowName, string(m.Status), m.WorktreePath,
		m.QueuePosition, m.IssueNumber, m.PRNumber, m.CreatedAtMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert mission: %w", err)
	}
	return nil
}

// GetMission fetches one mission by id.
func GetMission(ctx context.Context, q Querier, id string) (domain.Mission, error) {
	row := q.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE mission_id = ?`, id)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Mission{}, ErrMissionNotFound
	}
	if err != nil {
		return domain.Mission{}, fmt.Errorf("failed to get mission: %w", err)
	}
	return m, nil
}

// ListMissions returns every mission, newest first.
func ListMissions(ctx context.Context, q Querier) ([]domain.Mission, error) {
	return queryMissions(ctx, q,
		`SELECT `+missionColumns+` FROM missions ORDER BY created_at_ms DESC`)
}

// ListColonyQueue returns the colony's queued missions in queue order.
func ListColonyQueue(ctx context.Context, q Querier, colonyID string) ([]domain.Mission, error) {
	return queryMissions(ctx, q,
		`SELECT `+missionColumns+` FROM missions
		 WHERE colony_id = ? AND queue_position IS NOT NULL
		 ORDER BY queue_position ASC`, colonyID)
}

func queryMissions(ctx context.Context, q Querier, query string, args ...any) ([]domain.Mission, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	defer rows.Close()

	var out []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mission: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// NextQueuePosition returns the next free queue slot for a colony,
// starting at 1.
func NextQueuePosition(ctx context.Context, q Querier, colonyID string) (int64, error) {
	var next int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(queue_position), 0) + 1 FROM missions WHERE colony_id = ?`,
		colonyID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute queue position: %w", err)
	}
	return next, nil
}

// HasRunningQueuedMission reports whether any queued mission in the
// colony is currently running.
func HasRunningQueuedMission(ctx context.Context, q Querier, colonyID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM missions
		 WHERE colony_id = ? AND queue_position IS NOT NULL AND status = 'running'`,
		colonyID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check colony queue: %w", err)
	}
	return n > 0, nil
}

// NextPendingQueuedMission returns the pending mission with the smallest
// queue position in the colony, if any.
func NextPendingQueuedMission(ctx context.Context, q Querier, colonyID string) (domain.Mission, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions
		 WHERE colony_id = ? AND queue_position IS NOT NULL AND status = 'pending'
		 ORDER BY queue_position ASC LIMIT 1`, colonyID)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Mission{}, false, nil
	}
	if err != nil {
		return domain.Mission{}, false, fmt.Errorf("failed to find next queued mission: %w", err)
	}
	return m, true, nil
}

// UpdateMissionStatus sets a mission's status.
func UpdateMissionStatus(ctx context.Context, q Querier, missionID string, status domain.MissionStatus) error {
	_, err := q.ExecContext(ctx,
		`UPDATE missions SET status = ? WHERE mission_id = ?`, string(status), missionID)
	if err != nil {
		return fmt.Errorf("failed to update mission status: %w", err)
	}
	return nil
}

// ActivateMission marks a mission running and records its worktree path.
func ActivateMission(ctx context.Context, q Querier, missionID, worktreePath string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE missions SET status = 'running', worktree_path = ? WHERE mission_id = ?`,
		worktreePath, missionID)
	if err != nil {
		return fmt.Errorf("failed to activate mission: %w", err)
	}
	return nil
}

// SetMissionPRNumber records the pull request opened for a mission.
func SetMissionPRNumber(ctx context.Context, q Querier, missionID string, pr int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE missions SET pr_number = ? WHERE mission_id = ?`, pr, missionID)
	if err != nil {
		return fmt.Errorf("failed to set mission pr number: %w", err)
	}
	return nil
}

// DeleteMission removes a mission row entirely. Only pending queued
// missions are ever deleted; they have no tasks or runs yet.
func DeleteMission(ctx context.Context, q Querier, missionID string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM missions WHERE mission_id = ?`, missionID)
	if err != nil {
		return fmt.Errorf("failed to delete mission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrMissionNotFound
	}
	return nil
}

// QueuedIssueNumbers returns the set of issue numbers already attached
// to missions in this colony.
func QueuedIssueNumbers(ctx context.Context, q Querier, colonyID string) (map[int64]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT issue_number FROM missions WHERE colony_id = ? AND issue_number IS NOT NULL`,
		colonyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued issues: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan issue number: %w", err)
		}
		out[n] = true
	}
	return out, rows.Err()
}
