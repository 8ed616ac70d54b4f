package controlplane

import (
	"context"
	"database/sql"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
)

// activateColony promotes the next pending queued mission of the colony
// when nothing from its queue is running: lowest position first, one at
// a time. Runs after an issue is queued and after a mission settles.
func (s *Service) activateColony(ctx context.Context, tx *sql.Tx, out *sink, colonyID string) error {
	if colonyID == "" {
		return nil
	}
	running, err := sqlite.HasRunningQueuedMission(ctx, tx, colonyID)
	if err != nil || running {
		return err
	}
	mission, ok, err := sqlite.NextPendingQueuedMission(ctx, tx, colonyID)
	if err != nil || !ok {
		return err
	}

	worktree := domain.MissionWorktree(mission.MissionID)
	if err := sqlite.ActivateMission(ctx, tx, mission.MissionID, worktree); err != nil {
		return err
	}
	mission.Status = domain.MissionRunning
	mission.WorktreePath = &worktree
	log.Info(log.CatQueue, "Activated queued mission",
		"mission", mission.MissionID, "colony", colonyID)

	if mission.WorkflowName != nil {
		if manifest, found := s.workflows.Get(*mission.WorkflowName); found {
			if err := s.expandWorkflow(ctx, tx, out, manifest, mission); err != nil {
				return err
			}
		} else {
			log.Warn(log.CatQueue, "Mission names unknown workflow, activating without tasks",
				"mission", mission.MissionID, "workflow", *mission.WorkflowName)
		}
	}

	out.event(events.MissionUpdated(mission))
	return nil
}
