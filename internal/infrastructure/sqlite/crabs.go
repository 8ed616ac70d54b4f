package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crabitat/crabitat/internal/domain"
)

// crabColumns is the list of columns selected for crab queries.
const crabColumns = `crab_id, colony_id, name, role, state, current_task_id, current_run_id, updated_at_ms`

func scanCrab(scanner interface{ Scan(...any) error }) (domain.Crab, error) {
	var c domain.Crab
	var state string
	err := scanner.Scan(&c.CrabID, &c.ColonyID, &c.Name, &c.Role, &state,
		&c.CurrentTaskID, &c.CurrentRunID, &c.UpdatedAtMS)
	if err != nil {
		return domain.Crab{}, err
	}
	c.State = domain.ParseCrabState(state)
	return c, nil
}

// UpsertCrab registers a crab or refreshes an existing registration.
// On conflict the colony binding and the current task/run references are
// preserved; name, role, and state follow the new registration.
func UpsertCrab(ctx context.Context, q Querier, c domain.Crab) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO crabs (crab_id, colony_id, name, role, state, current_task_id, current_run_id, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, NULL, NULL, ?)
		 ON CONFLICT(crab_id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			state = excluded.state,
			updated_at_ms = excluded.updated_at_ms`,
		c.CrabID, c.ColonyID, c.Name, c.Role, string(c.State), c.UpdatedAtMS,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert crab: %w", err)
	}
	return nil
}

// GetCrab fetches one crab by id.
func GetCrab(ctx context.Context, q Querier, id string) (domain.Crab, error) {
	row := q.QueryRowContext(ctx, `SELECT `+crabColumns+` FROM crabs WHERE crab_id = ?`, id)
	c, err := scanCrab(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Crab{}, ErrCrabNotFound
	}
	if err != nil {
		return domain.Crab{}, fmt.Errorf("failed to get crab: %w", err)
	}
	return c, nil
}

// ListCrabs returns every crab ordered by id.
func ListCrabs(ctx context.Context, q Querier) ([]domain.Crab, error) {
	return queryCrabs(ctx, q, `SELECT `+crabColumns+` FROM crabs ORDER BY crab_id ASC`)
}

// ListIdleCrabs returns idle crabs ordered by id, the scheduler's
// candidate pool.
func ListIdleCrabs(ctx context.Context, q Querier) ([]domain.Crab, error) {
	return queryCrabs(ctx, q,
		`SELECT `+crabColumns+` FROM crabs WHERE state = 'idle' ORDER BY crab_id ASC`)
}

func queryCrabs(ctx context.Context, q Querier, query string, args ...any) ([]domain.Crab, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crabs: %w", err)
	}
	defer rows.Close()

	var out []domain.Crab
	for rows.Next() {
		c, err := scanCrab(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crab: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetCrabState updates a crab's state together with its current task and
// run references.
func SetCrabState(ctx context.Context, q Querier, crabID string, state domain.CrabState, taskID, runID *string, now int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE crabs SET state = ?, current_task_id = ?, current_run_id = ?, updated_at_ms = ? WHERE crab_id = ?`,
		string(state), taskID, runID, now, crabID,
	)
	if err != nil {
		return fmt.Errorf("failed to update crab state: %w", err)
	}
	return nil
}

// TouchCrab refreshes a crab's updated_at timestamp. Returns false when
// the crab does not exist.
func TouchCrab(ctx context.Context, q Querier, crabID string, now int64) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE crabs SET updated_at_ms = ? WHERE crab_id = ?`, now, crabID)
	if err != nil {
		return false, fmt.Errorf("failed to touch crab: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// RoleTaken reports whether another crab in the colony already holds the
// given role.
func RoleTaken(ctx context.Context, q Querier, colonyID, role, excludeCrabID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crabs WHERE colony_id = ? AND role = ? AND crab_id != ?`,
		colonyID, role, excludeCrabID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return n > 0, nil
}
