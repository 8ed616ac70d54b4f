package domain

// StatusSummary aggregates fleet-wide counters for the status endpoint
// and the console snapshot frame.
type StatusSummary struct {
	TotalCrabs    int    `json:"total_crabs"`
	BusyCrabs     int    `json:"busy_crabs"`
	RunningTasks  int    `json:"running_tasks"`
	RunningRuns   int    `json:"running_runs"`
	CompletedRuns int    `json:"completed_runs"`
	FailedRuns    int    `json:"failed_runs"`
	TotalTokens   int64  `json:"total_tokens"`
	AvgEndToEndMS *int64 `json:"avg_end_to_end_ms"`
}

// StatusSnapshot is the full state bundle served by the status endpoint
// and pushed to console sessions on connect.
type StatusSnapshot struct {
	GeneratedAtMS int64         `json:"generated_at_ms"`
	Summary       StatusSummary `json:"summary"`
	Colonies      []Colony      `json:"colonies"`
	Crabs         []Crab        `json:"crabs"`
	Missions      []Mission     `json:"missions"`
	Tasks         []Task        `json:"tasks"`
	Runs          []Run         `json:"runs"`
}
