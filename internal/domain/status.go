package domain

// CrabState describes what a worker is currently doing.
type CrabState string

const (
	CrabIdle    CrabState = "idle"
	CrabBusy    CrabState = "busy"
	CrabOffline CrabState = "offline"
)

// ParseCrabState maps a stored string onto a CrabState. Unknown values
// fall back to idle so rows written by newer versions stay readable.
func ParseCrabState(raw string) CrabState {
	switch CrabState(raw) {
	case CrabBusy, CrabOffline:
		return CrabState(raw)
	default:
		return CrabIdle
	}
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskAssigned  TaskStatus = "assigned"
	TaskRunning   TaskStatus = "running"
	TaskBlocked   TaskStatus = "blocked"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Terminal reports whether no further transitions are expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// ParseTaskStatus maps a stored string onto a TaskStatus, defaulting
// unknown values to queued.
func ParseTaskStatus(raw string) TaskStatus {
	switch TaskStatus(raw) {
	case TaskAssigned, TaskRunning, TaskBlocked, TaskCompleted, TaskFailed, TaskSkipped:
		return TaskStatus(raw)
	default:
		return TaskQueued
	}
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunBlocked   RunStatus = "blocked"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the run has finished for good.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// ParseRunStatus maps a stored string onto a RunStatus, defaulting
// unknown values to queued.
func ParseRunStatus(raw string) RunStatus {
	switch RunStatus(raw) {
	case RunRunning, RunBlocked, RunCompleted, RunFailed:
		return RunStatus(raw)
	default:
		return RunQueued
	}
}

// MissionStatus is the lifecycle state of a mission.
type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionRunning   MissionStatus = "running"
	MissionCompleted MissionStatus = "completed"
	MissionFailed    MissionStatus = "failed"
)

// Terminal reports whether the mission has finished for good.
func (s MissionStatus) Terminal() bool {
	return s == MissionCompleted || s == MissionFailed
}

// ParseMissionStatus maps a stored string onto a MissionStatus,
// defaulting unknown values to pending.
func ParseMissionStatus(raw string) MissionStatus {
	switch MissionStatus(raw) {
	case MissionRunning, MissionCompleted, MissionFailed:
		return MissionStatus(raw)
	default:
		return MissionPending
	}
}

// BurrowMode describes how a run's working directory was provisioned.
type BurrowMode string

const (
	BurrowWorktree     BurrowMode = "worktree"
	BurrowExternalRepo BurrowMode = "external_repo"
)

// ParseBurrowMode maps a stored string onto a BurrowMode, defaulting
// unknown values to worktree.
func ParseBurrowMode(raw string) BurrowMode {
	if BurrowMode(raw) == BurrowExternalRepo {
		return BurrowExternalRepo
	}
	return BurrowWorktree
}
