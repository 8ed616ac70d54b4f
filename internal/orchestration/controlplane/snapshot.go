package controlplane

import (
	"context"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
)

// Snapshot assembles the full console state: entity listings plus the
// aggregate summary, all read under one view lock.
func (s *Service) Snapshot(ctx context.Context) (domain.StatusSnapshot, error) {
	var snap domain.StatusSnapshot
	err := s.view(ctx, func(q sqlite.Querier) error {
		var err error
		if snap.Colonies, err = sqlite.ListColonies(ctx, q); err != nil {
			return err
		}
		if snap.Crabs, err = sqlite.ListCrabs(ctx, q); err != nil {
			return err
		}
		if snap.Missions, err = sqlite.ListMissions(ctx, q); err != nil {
			return err
		}
		if snap.Tasks, err = sqlite.ListTasks(ctx, q); err != nil {
			return err
		}
		if snap.Runs, err = sqlite.ListRuns(ctx, q); err != nil {
			return err
		}
		avg, err := sqlite.AvgEndToEndMS(ctx, q)
		if err != nil {
			return err
		}
		snap.Summary = summarize(snap.Crabs, snap.Tasks, snap.Runs)
		snap.Summary.AvgEndToEndMS = avg
		return nil
	})
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	snap.GeneratedAtMS = domain.NowMS()
	return snap, nil
}

func summarize(crabs []domain.Crab, tasks []domain.Task, runs []domain.Run) domain.StatusSummary {
	sum := domain.StatusSummary{TotalCrabs: len(crabs)}
	for _, c := range crabs {
		if c.State == domain.CrabBusy {
			sum.BusyCrabs++
		}
	}
	for _, t := range tasks {
		if t.Status == domain.TaskRunning {
			sum.RunningTasks++
		}
	}
	for _, r := range runs {
		switch r.Status {
		case domain.RunRunning:
			sum.RunningRuns++
		case domain.RunCompleted:
			sum.CompletedRuns++
		case domain.RunFailed:
			sum.FailedRuns++
		}
		sum.TotalTokens += r.Metrics.TotalTokens
	}
	return sum
}
