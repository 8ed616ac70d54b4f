package controlplane

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/forge"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
	"github.com/crabitat/crabitat/internal/workflow"
)

// defaultWorkflow is expanded for queued issues that name no workflow.
const defaultWorkflow = "dev-task"

// CreateMissionRequest is the body of POST /v1/missions.
type CreateMissionRequest struct {
	Prompt   string  `json:"prompt"`
	ColonyID string  `json:"colony_id"`
	Workflow *string `json:"workflow"`
}

// QueueIssueRequest is the body of POST /v1/colonies/{id}/queue.
type QueueIssueRequest struct {
	IssueNumber int64  `json:"issue_number"`
	Workflow    string `json:"workflow"`
}

// MissionDetail is the full picture of one mission.
type MissionDetail struct {
	Mission domain.Mission `json:"mission"`
	Tasks   []domain.Task  `json:"tasks"`
	Runs    []domain.Run   `json:"runs"`
}

// CreateMission starts a mission immediately. With a workflow attached
// the mission enters running with its worktree set and the manifest is
// expanded into tasks; without one it stays pending until tasks arrive
// through POST /v1/tasks.
func (s *Service) CreateMission(ctx context.Context, req CreateMissionRequest) (domain.Mission, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.Mission{}, BadRequest("prompt is required")
	}

	var manifest *workflow.Manifest
	if req.Workflow != nil {
		var ok bool
		manifest, ok = s.workflows.Get(*req.Workflow)
		if !ok {
			return domain.Mission{}, NotFound("workflow %q not found", *req.Workflow)
		}
	}

	mission := domain.Mission{
		MissionID:    domain.NewID(),
		ColonyID:     strings.TrimSpace(req.ColonyID),
		Prompt:       req.Prompt,
		WorkflowName: req.Workflow,
		Status:       domain.MissionPending,
		CreatedAtMS:  domain.NowMS(),
	}
	if manifest != nil {
		worktree := domain.MissionWorktree(mission.MissionID)
		mission.Status = domain.MissionRunning
		mission.WorktreePath = &worktree
	}

	err := s.mutate(ctx, "create_mission", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		if mission.ColonyID != "" {
			if _, err := sqlite.GetColony(ctx, tx, mission.ColonyID); err != nil {
				if errors.Is(err, sqlite.ErrColonyNotFound) {
					return NotFound("colony_id not found")
				}
				return err
			}
		}
		if err := sqlite.InsertMission(ctx, tx, mission); err != nil {
			return err
		}
		log.Info(log.CatQueue, "Mission created",
			"mission", mission.MissionID, "workflow", mission.WorkflowName)
		out.event(events.MissionCreated(mission))

		if manifest != nil {
			if err := s.expandWorkflow(ctx, tx, out, manifest, mission); err != nil {
				return err
			}
		}
		return s.schedule(ctx, tx, out)
	})
	return mission, err
}

// GetMission returns the mission with its tasks and runs.
func (s *Service) GetMission(ctx context.Context, missionID string) (MissionDetail, error) {
	var detail MissionDetail
	err := s.view(ctx, func(q sqlite.Querier) error {
		var err error
		detail.Mission, err = sqlite.GetMission(ctx, q, missionID)
		if err != nil {
			if errors.Is(err, sqlite.ErrMissionNotFound) {
				return NotFound("mission_id not found")
			}
			return err
		}
		if detail.Tasks, err = sqlite.ListTasksByMission(ctx, q, missionID); err != nil {
			return err
		}
		detail.Runs, err = sqlite.ListRunsByMission(ctx, q, missionID)
		return err
	})
	return detail, err
}

// ListMissions returns every mission, newest first.
func (s *Service) ListMissions(ctx context.Context) ([]domain.Mission, error) {
	var missions []domain.Mission
	err := s.view(ctx, func(q sqlite.Querier) error {
		var err error
		missions, err = sqlite.ListMissions(ctx, q)
		return err
	})
	return missions, err
}

// QueueIssue turns a forge issue into a queued mission at the back of
// the colony's queue, then runs activation, which starts the mission
// right away when the queue is otherwise empty.
func (s *Service) QueueIssue(ctx context.Context, colonyID string, req QueueIssueRequest) (domain.Mission, error) {
	if s.forge == nil {
		return domain.Mission{}, BadRequest("forge is not configured")
	}
	if req.IssueNumber <= 0 {
		return domain.Mission{}, BadRequest("issue_number is required")
	}
	workflowName := req.Workflow
	if workflowName == "" {
		workflowName = defaultWorkflow
	}

	var repo string
	err := s.view(ctx, func(q sqlite.Querier) error {
		colony, err := sqlite.GetColony(ctx, q, colonyID)
		if err != nil {
			if errors.Is(err, sqlite.ErrColonyNotFound) {
				return NotFound("colony_id not found")
			}
			return err
		}
		if colony.Repo == nil {
			return BadRequest("colony has no repo bound")
		}
		repo = *colony.Repo
		return nil
	})
	if err != nil {
		return domain.Mission{}, err
	}

	issue, err := s.forge.GetIssue(ctx, repo, req.IssueNumber)
	if err != nil {
		if errors.Is(err, forge.ErrNotFound) {
			return domain.Mission{}, NotFound("issue #%d not found in %s", req.IssueNumber, repo)
		}
		return domain.Mission{}, Internal("failed to fetch issue: %v", err)
	}

	var mission domain.Mission
	err = s.mutate(ctx, "queue_issue", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		queued, err := sqlite.QueuedIssueNumbers(ctx, tx, colonyID)
		if err != nil {
			return err
		}
		if queued[req.IssueNumber] {
			return BadRequest("issue #%d is already queued", req.IssueNumber)
		}
		position, err := sqlite.NextQueuePosition(ctx, tx, colonyID)
		if err != nil {
			return err
		}

		issueNumber := req.IssueNumber
		mission = domain.Mission{
			MissionID:     domain.NewID(),
			ColonyID:      colonyID,
			Prompt:        issuePrompt(issue),
			WorkflowName:  &workflowName,
			Status:        domain.MissionPending,
			QueuePosition: &position,
			IssueNumber:   &issueNumber,
			CreatedAtMS:   domain.NowMS(),
		}
		if err := sqlite.InsertMission(ctx, tx, mission); err != nil {
			return err
		}
		log.Info(log.CatQueue, "Issue queued",
			"colony", colonyID, "issue", issueNumber, "position", position)
		out.event(events.MissionCreated(mission))

		if err := s.activateColony(ctx, tx, out, colonyID); err != nil {
			return err
		}
		if err := s.schedule(ctx, tx, out); err != nil {
			return err
		}
		// Activation may have started this mission; hand back fresh state.
		mission, err = sqlite.GetMission(ctx, tx, mission.MissionID)
		return err
	})
	return mission, err
}

// issuePrompt renders a forge issue as a mission prompt.
func issuePrompt(issue forge.Issue) string {
	prompt := fmt.Sprintf("Issue #%d: %s", issue.Number, issue.Title)
	if strings.TrimSpace(issue.Body) != "" {
		prompt += "\n\n" + issue.Body
	}
	return prompt
}

// ListQueue returns the colony's queued missions in queue order.
func (s *Service) ListQueue(ctx context.Context, colonyID string) ([]domain.Mission, error) {
	var missions []domain.Mission
	err := s.view(ctx, func(q sqlite.Querier) error {
		if _, err := sqlite.GetColony(ctx, q, colonyID); err != nil {
			if errors.Is(err, sqlite.ErrColonyNotFound) {
				return NotFound("colony_id not found")
			}
			return err
		}
		var err error
		missions, err = sqlite.ListColonyQueue(ctx, q, colonyID)
		return err
	})
	return missions, err
}

// DequeueMission removes a still-pending mission from the colony queue.
func (s *Service) DequeueMission(ctx context.Context, colonyID, missionID string) error {
	return s.mutate(ctx, "dequeue_mission", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		mission, err := sqlite.GetMission(ctx, tx, missionID)
		if err != nil {
			if errors.Is(err, sqlite.ErrMissionNotFound) {
				return NotFound("mission_id not found")
			}
			return err
		}
		if mission.ColonyID != colonyID || mission.QueuePosition == nil {
			return NotFound("mission_id not found")
		}
		if mission.Status != domain.MissionPending {
			return BadRequest("only pending missions can be removed from the queue")
		}
		log.Info(log.CatQueue, "Mission dequeued", "mission", missionID, "colony", colonyID)
		return sqlite.DeleteMission(ctx, tx, missionID)
	})
}
