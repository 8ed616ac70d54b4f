package testutil

import "github.com/crabitat/crabitat/internal/domain"

func defaultColony(id string, now int64) domain.Colony {
	return domain.Colony{
		ColonyID:    id,
		Name:        id, // Default name is the ID
		CreatedAtMS: now,
	}
}

// ColonyOption configures a colony during builder setup.
type ColonyOption func(*domain.Colony)

// ColonyName sets the colony display name.
func ColonyName(name string) ColonyOption {
	return func(c *domain.Colony) { c.Name = name }
}

// ColonyDescription sets the colony description.
func ColonyDescription(desc string) ColonyOption {
	return func(c *domain.Colony) { c.Description = desc }
}

// ColonyRepo points the colony at a forge repository ("owner/name").
func ColonyRepo(repo string) ColonyOption {
	return func(c *domain.Colony) { c.Repo = &repo }
}

func defaultCrab(id string, now int64) domain.Crab {
	return domain.Crab{
		CrabID:      id,
		ColonyID:    "col-1",
		Name:        id,
		Role:        "coder",
		State:       domain.CrabIdle,
		UpdatedAtMS: now,
	}
}

// CrabOption configures a crab during builder setup.
type CrabOption func(*domain.Crab)

// InColony binds the crab to a colony.
func InColony(colonyID string) CrabOption {
	return func(c *domain.Crab) { c.ColonyID = colonyID }
}

// Role sets the crab's role.
func Role(role string) CrabOption {
	return func(c *domain.Crab) { c.Role = role }
}

// CrabState sets the crab's state.
func CrabState(state domain.CrabState) CrabOption {
	return func(c *domain.Crab) { c.State = state }
}

// WorkingOn marks the crab busy on the given task and run.
func WorkingOn(taskID, runID string) CrabOption {
	return func(c *domain.Crab) {
		c.State = domain.CrabBusy
		c.CurrentTaskID = &taskID
		c.CurrentRunID = &runID
	}
}

func defaultMission(id string, now int64) domain.Mission {
	return domain.Mission{
		MissionID:   id,
		ColonyID:    "col-1",
		Prompt:      "mission " + id,
		Status:      domain.MissionRunning,
		CreatedAtMS: now,
	}
}

// MissionOption configures a mission during builder setup.
type MissionOption func(*domain.Mission)

// MissionColony binds the mission to a colony.
func MissionColony(colonyID string) MissionOption {
	return func(m *domain.Mission) { m.ColonyID = colonyID }
}

// MissionPrompt sets the mission prompt.
func MissionPrompt(prompt string) MissionOption {
	return func(m *domain.Mission) { m.Prompt = prompt }
}

// Workflow names the workflow the mission was expanded from.
func Workflow(name string) MissionOption {
	return func(m *domain.Mission) { m.WorkflowName = &name }
}

// MissionState sets the mission status.
func MissionState(status domain.MissionStatus) MissionOption {
	return func(m *domain.Mission) { m.Status = status }
}

// Worktree sets the mission's worktree path.
func Worktree(path string) MissionOption {
	return func(m *domain.Mission) { m.WorktreePath = &path }
}

// QueuedAt places the mission in the colony queue at the given position.
func QueuedAt(pos int64) MissionOption {
	return func(m *domain.Mission) {
		m.QueuePosition = &pos
		m.Status = domain.MissionPending
	}
}

// FromIssue links the mission to a forge issue number.
func FromIssue(n int64) MissionOption {
	return func(m *domain.Mission) { m.IssueNumber = &n }
}

// PRNumber records the pull request opened for the mission.
func PRNumber(n int64) MissionOption {
	return func(m *domain.Mission) { m.PRNumber = &n }
}

func defaultTask(id, missionID string, now int64) domain.Task {
	return domain.Task{
		TaskID:      id,
		MissionID:   missionID,
		Title:       id, // Default title is the ID
		Status:      domain.TaskQueued,
		CreatedAtMS: now,
		UpdatedAtMS: now,
	}
}

// TaskOption configures a task during builder setup.
type TaskOption func(*domain.Task)

// TaskTitle sets the task title.
func TaskTitle(title string) TaskOption {
	return func(t *domain.Task) { t.Title = title }
}

// TaskState sets the task status.
func TaskState(status domain.TaskStatus) TaskOption {
	return func(t *domain.Task) { t.Status = status }
}

// Step marks the task as a workflow step with the given id and role.
func Step(stepID, role string) TaskOption {
	return func(t *domain.Task) {
		t.StepID = &stepID
		t.Role = &role
	}
}

// TaskPrompt sets the rendered step prompt.
func TaskPrompt(prompt string) TaskOption {
	return func(t *domain.Task) { t.Prompt = &prompt }
}

// TaskContext sets the raw context payload.
func TaskContext(ctx string) TaskOption {
	return func(t *domain.Task) { t.Context = &ctx }
}

// AssignedTo sets the crab currently holding the task.
func AssignedTo(crabID string) TaskOption {
	return func(t *domain.Task) { t.AssignedCrabID = &crabID }
}

// MaxRetries caps how many review rounds the step may trigger.
func MaxRetries(n int64) TaskOption {
	return func(t *domain.Task) { t.MaxRetries = &n }
}

func defaultRun(id, missionID, taskID, crabID string, now int64) domain.Run {
	return domain.Run{
		RunID:           id,
		MissionID:       missionID,
		TaskID:          taskID,
		CrabID:          crabID,
		Status:          domain.RunRunning,
		BurrowPath:      "/tmp/burrow-" + id,
		BurrowMode:      domain.BurrowWorktree,
		ProgressMessage: "run started",
		StartedAtMS:     now,
		UpdatedAtMS:     now,
	}
}

// RunOption configures a run during builder setup.
type RunOption func(*domain.Run)

// RunState sets the run status. Terminal states also stamp completed_at
// unless one was set explicitly.
func RunState(status domain.RunStatus) RunOption {
	return func(r *domain.Run) {
		r.Status = status
		if status.Terminal() && r.CompletedAtMS == nil {
			done := r.UpdatedAtMS
			r.CompletedAtMS = &done
		}
	}
}

// Summary sets the run's final summary.
func Summary(s string) RunOption {
	return func(r *domain.Run) { r.Summary = &s }
}

// CompletedAt sets the completion timestamp explicitly.
func CompletedAt(ms int64) RunOption {
	return func(r *domain.Run) {
		r.CompletedAtMS = &ms
		r.UpdatedAtMS = ms
	}
}

// Metrics sets the run's metrics snapshot.
func Metrics(m domain.RunMetrics) RunOption {
	return func(r *domain.Run) { r.Metrics = m }
}
