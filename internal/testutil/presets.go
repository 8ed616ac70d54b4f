package testutil

import "github.com/crabitat/crabitat/internal/domain"

// WithStandardCrew adds a colony with one idle crab per dev-task role.
func (b *Builder) WithStandardCrew() *Builder {
	return b.
		WithColony("col-1", ColonyName("reef"), ColonyRepo("crabitat/sandbox")).
		WithCrab("crab-planner", Role("planner")).
		WithCrab("crab-coder", Role("coder")).
		WithCrab("crab-reviewer", Role("reviewer"))
}

// WithDevTaskMission adds a running mission holding the four tasks the
// dev-task workflow expands into: plan is ready, everything downstream
// is blocked behind it.
//
// Structure:
//
//	plan (queued)
//	  └── implement (blocked)
//	        └── review (blocked, max_retries 2)
//	              └── fix (blocked, conditional on review failing)
func (b *Builder) WithDevTaskMission(missionID string) *Builder {
	return b.
		WithMission(missionID,
			Workflow("dev-task"),
			Worktree("burrows/mission-"+missionID)).
		WithTask(missionID+"-plan", missionID,
			TaskTitle("[plan] planner"), Step("plan", "planner"),
			TaskPrompt("plan the work"), TaskState(domain.TaskQueued)).
		WithTask(missionID+"-implement", missionID,
			TaskTitle("[implement] coder"), Step("implement", "coder"),
			TaskPrompt("implement the plan"), TaskState(domain.TaskBlocked)).
		WithTask(missionID+"-review", missionID,
			TaskTitle("[review] reviewer"), Step("review", "reviewer"),
			TaskPrompt("review the changes"), TaskState(domain.TaskBlocked),
			TaskContext(`{"_max_retries":2}`), MaxRetries(2)).
		WithTask(missionID+"-fix", missionID,
			TaskTitle("[fix] coder"), Step("fix", "coder"),
			TaskPrompt("address review feedback"), TaskState(domain.TaskBlocked),
			TaskContext(`{"_condition":"review.result == 'fail'"}`)).
		WithDependency(missionID+"-implement", missionID+"-plan").
		WithDependency(missionID+"-review", missionID+"-implement").
		WithDependency(missionID+"-fix", missionID+"-review")
}

// WithQueuedBacklog adds two pending queued missions behind one running
// queued mission in col-1.
func (b *Builder) WithQueuedBacklog() *Builder {
	return b.
		WithMission("mis-active",
			QueuedAt(1), MissionState(domain.MissionRunning),
			Worktree("burrows/mission-mis-active")).
		WithMission("mis-next",
			QueuedAt(2), FromIssue(11)).
		WithMission("mis-later",
			QueuedAt(3), FromIssue(12))
}
