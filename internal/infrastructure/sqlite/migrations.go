package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/crabitat/crabitat/internal/log"
)

// migration is one schema version step. Steps must stay additive so a
// restart against an older database upgrades in place.
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, name: "base schema", apply: migrateBaseSchema},
	{version: 2, name: "colonies, workflows, and dependency edges", apply: migrateColonyEra},
}

func migrate(conn *sql.DB) error {
	var current int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if err := m.apply(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to bump user_version to %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
		log.Info(log.CatDB, "applied migration", "version", m.version, "name", m.name)
	}
	return nil
}

func migrateBaseSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS crabs (
			crab_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			state TEXT NOT NULL,
			current_task_id TEXT,
			current_run_id TEXT,
			updated_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS missions (
			mission_id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			mission_id TEXT NOT NULL REFERENCES missions(mission_id),
			title TEXT NOT NULL,
			assigned_crab_id TEXT,
			status TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			mission_id TEXT NOT NULL REFERENCES missions(mission_id),
			task_id TEXT NOT NULL REFERENCES tasks(task_id),
			crab_id TEXT NOT NULL,
			status TEXT NOT NULL,
			burrow_path TEXT NOT NULL,
			burrow_mode TEXT NOT NULL,
			progress_message TEXT NOT NULL,
			summary TEXT,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			first_token_ms INTEGER,
			llm_duration_ms INTEGER,
			execution_duration_ms INTEGER,
			end_to_end_ms INTEGER,
			started_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			completed_at_ms INTEGER
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateColonyEra(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS colonies (
			colony_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			repo TEXT,
			created_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_deps (
			task_id TEXT NOT NULL REFERENCES tasks(task_id),
			depends_on_task_id TEXT NOT NULL REFERENCES tasks(task_id),
			PRIMARY KEY (task_id, depends_on_task_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	columns := []struct {
		table string
		def   string
	}{
		{"crabs", "colony_id TEXT NOT NULL DEFAULT ''"},
		{"missions", "colony_id TEXT NOT NULL DEFAULT ''"},
		{"missions", "workflow_name TEXT"},
		{"missions", "status TEXT NOT NULL DEFAULT 'pending'"},
		{"missions", "worktree_path TEXT"},
		{"missions", "queue_position INTEGER"},
		{"missions", "issue_number INTEGER"},
		{"missions", "pr_number INTEGER"},
		{"tasks", "step_id TEXT"},
		{"tasks", "role TEXT"},
		{"tasks", "prompt TEXT"},
		{"tasks", "context TEXT"},
		{"tasks", "max_retries INTEGER"},
	}
	for _, c := range columns {
		if err := addColumn(tx, c.table, c.def); err != nil {
			return fmt.Errorf("adding %s.%s: %w", c.table, c.def, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_tasks_mission ON tasks(mission_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_missions_colony ON missions(colony_id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_deps_dep ON task_deps(depends_on_task_id)`,
	}
	for _, stmt := range indexes {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// addColumn applies an ALTER TABLE ... ADD COLUMN, tolerating reruns
// against a database that already has the column.
func addColumn(tx *sql.Tx, table, definition string) error {
	_, err := tx.Exec("ALTER TABLE " + table + " ADD COLUMN " + definition)
	if err != nil && strings.Contains(err.Error(), "duplicate column") {
		return nil
	}
	return err
}
