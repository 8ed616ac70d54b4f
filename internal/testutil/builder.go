package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
)

// depData holds one dependency edge to be inserted.
type depData struct {
	taskID    string
	dependsOn string
}

// Builder accumulates test data and inserts it in foreign-key order.
// Timestamps auto-increment per entity so list orderings stay stable.
type Builder struct {
	t        *testing.T
	db       *sqlite.DB
	clock    int64
	colonies []domain.Colony
	crabs    []domain.Crab
	missions []domain.Mission
	tasks    []domain.Task
	deps     []depData
	runs     []domain.Run
}

// NewBuilder creates a builder for the given test store.
func NewBuilder(t *testing.T, db *sqlite.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db, clock: 1000}
}

func (b *Builder) tick() int64 {
	b.clock += 10
	return b.clock
}

// WithColony adds a colony with optional configuration.
func (b *Builder) WithColony(id string, opts ...ColonyOption) *Builder {
	c := defaultColony(id, b.tick())
	for _, opt := range opts {
		opt(&c)
	}
	b.colonies = append(b.colonies, c)
	return b
}

// WithCrab adds a crab with optional configuration.
func (b *Builder) WithCrab(id string, opts ...CrabOption) *Builder {
	c := defaultCrab(id, b.tick())
	for _, opt := range opts {
		opt(&c)
	}
	b.crabs = append(b.crabs, c)
	return b
}

// WithMission adds a mission with optional configuration.
func (b *Builder) WithMission(id string, opts ...MissionOption) *Builder {
	m := defaultMission(id, b.tick())
	for _, opt := range opts {
		opt(&m)
	}
	b.missions = append(b.missions, m)
	return b
}

// WithTask adds a task under the given mission.
func (b *Builder) WithTask(id, missionID string, opts ...TaskOption) *Builder {
	task := defaultTask(id, missionID, b.tick())
	for _, opt := range opts {
		opt(&task)
	}
	b.tasks = append(b.tasks, task)
	return b
}

// WithDependency records that taskID depends on dependsOn.
func (b *Builder) WithDependency(taskID, dependsOn string) *Builder {
	b.deps = append(b.deps, depData{taskID, dependsOn})
	return b
}

// WithRun adds a run for the given task.
func (b *Builder) WithRun(id, missionID, taskID, crabID string, opts ...RunOption) *Builder {
	run := defaultRun(id, missionID, taskID, crabID, b.tick())
	for _, opt := range opts {
		opt(&run)
	}
	b.runs = append(b.runs, run)
	return b
}

// Build inserts all accumulated data into the store in one transaction.
func (b *Builder) Build() {
	b.t.Helper()
	ctx := context.Background()
	err := b.db.InTx(ctx, func(q *sql.Tx) error {
		for _, c := range b.colonies {
			if err := sqlite.InsertColony(ctx, q, c); err != nil {
				return err
			}
		}
		for _, c := range b.crabs {
			if err := sqlite.UpsertCrab(ctx, q, c); err != nil {
				return err
			}
			// UpsertCrab inserts fresh crabs without current refs; patch
			// them in for fixtures that model an in-flight assignment.
			if c.CurrentTaskID != nil || c.CurrentRunID != nil {
				if err := sqlite.SetCrabState(ctx, q, c.CrabID, c.State, c.CurrentTaskID, c.CurrentRunID, c.UpdatedAtMS); err != nil {
					return err
				}
			}
		}
		for _, m := range b.missions {
			if err := sqlite.InsertMission(ctx, q, m); err != nil {
				return err
			}
		}
		for _, task := range b.tasks {
			if err := sqlite.InsertTask(ctx, q, task); err != nil {
				return err
			}
		}
		for _, dep := range b.deps {
			if err := sqlite.InsertTaskDep(ctx, q, dep.taskID, dep.dependsOn); err != nil {
				return err
			}
		}
		for _, run := range b.runs {
			if err := sqlite.InsertRun(ctx, q, run); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(b.t, err, "Failed to build fixtures")
}
