package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crabitat/crabitat/internal/domain"
)

// colonyColumns is the list of columns selected for colony queries.
const colonyColumns = `colony_id, name, description, repo, created_at_ms`

func scanColony(scanner interface{ Scan(...any) error }) (domain.Colony, error) {
	var c domain.Colony
	err := scanner.Scan(&c.ColonyID, &c.Name, &c.Description, &c.Repo, &c.CreatedAtMS)
	return c, err
}

// InsertColony persists a new colony.
func InsertColony(ctx context.Context, q Querier, c domain.Colony) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO colonies (colony_id, name, description, repo, created_at_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ColonyID, c.Name, c.Description, c.Repo, c.CreatedAtMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert colony: %w", err)
	}
	return nil
}

// GetColony fetches one colony by id.
func GetColony(ctx context.Context, q Querier, id string) (domain.Colony, error) {
	row := q.QueryRowContext(ctx, `SELECT `+colonyColumns+` FROM colonies WHERE colony_id = ?`, id)
	c, err := scanColony(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Colony{}, ErrColonyNotFound
	}
	if err != nil {
		return domain.Colony{}, fmt.Errorf("failed to get colony: %w", err)
	}
	return c, nil
}

// UpdateColony overwrites a colony's name, description, and repo.
func UpdateColony(ctx context.Context, q Querier, c domain.Colony) error {
	res, err := q.ExecContext(ctx,
		`UPDATE colonies SET name = ?, description = ?, repo = ? WHERE colony_id = ?`,
		c.Name, c.Description, c.Repo, c.ColonyID,
	)
	if err != nil {
		return fmt.Errorf("failed to update colony: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrColonyNotFound
	}
	return nil
}

// ListColonies returns every colony, oldest first.
func ListColonies(ctx context.Context, q Querier) ([]domain.Colony, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+colonyColumns+` FROM colonies ORDER BY created_at_ms ASC, colony_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list colonies: %w", err)
	}
	defer rows.Close()

	var out []domain.Colony
	for rows.Next() {
		c, err := scanColony(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan colony: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
