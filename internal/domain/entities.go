package domain

// Colony is a registered repository workspace. Crabs and missions both
// belong to exactly one colony.
type Colony struct {
	ColonyID    string  `json:"colony_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Repo        *string `json:"repo"`
	CreatedAtMS int64   `json:"created_at_ms"`
}

// Crab is a worker agent registered with the control plane.
type Crab struct {
	CrabID        string    `json:"crab_id"`
	ColonyID      string    `json:"colony_id"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	State         CrabState `json:"state"`
	CurrentTaskID *string   `json:"current_task_id"`
	CurrentRunID  *string   `json:"current_run_id"`
	UpdatedAtMS   int64     `json:"updated_at_ms"`
}

// Mission is one end-to-end unit of work against a colony's repository.
// Queued missions carry a queue position until they activate; missions
// created from an issue remember the issue number, and a pr step records
// the opened pull request number here.
type Mission struct {
	MissionID     string        `json:"mission_id"`
	ColonyID      string        `json:"colony_id"`
	Prompt        string        `json:"prompt"`
	WorkflowName  *string       `json:"workflow_name"`
	Status        MissionStatus `json:"status"`
	WorktreePath  *string       `json:"worktree_path"`
	QueuePosition *int64        `json:"queue_position"`
	IssueNumber   *int64        `json:"issue_number"`
	PRNumber      *int64        `json:"pr_number"`
	CreatedAtMS   int64         `json:"created_at_ms"`
}

// Task is a single step of a mission, or an ad-hoc unit of work created
// directly through the API. Workflow-expanded tasks carry the step id,
// role, prompt, and context; ad-hoc tasks leave those nil.
type Task struct {
	TaskID         string     `json:"task_id"`
	MissionID      string     `json:"mission_id"`
	Title          string     `json:"title"`
	AssignedCrabID *string    `json:"assigned_crab_id"`
	Status         TaskStatus `json:"status"`
	StepID         *string    `json:"step_id"`
	Role           *string    `json:"role"`
	Prompt         *string    `json:"prompt"`
	Context        *string    `json:"context"`
	MaxRetries     *int64     `json:"max_retries"`
	CreatedAtMS    int64      `json:"created_at_ms"`
	UpdatedAtMS    int64      `json:"updated_at_ms"`
}

// Run is one execution attempt of a task by a crab.
type Run struct {
	RunID           string     `json:"run_id"`
	MissionID       string     `json:"mission_id"`
	TaskID          string     `json:"task_id"`
	CrabID          string     `json:"crab_id"`
	Status          RunStatus  `json:"status"`
	BurrowPath      string     `json:"burrow_path"`
	BurrowMode      BurrowMode `json:"burrow_mode"`
	ProgressMessage string     `json:"progress_message"`
	Summary         *string    `json:"summary"`
	Metrics         RunMetrics `json:"metrics"`
	StartedAtMS     int64      `json:"started_at_ms"`
	UpdatedAtMS     int64      `json:"updated_at_ms"`
	CompletedAtMS   *int64     `json:"completed_at_ms"`
}
