package controlplane

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/orchestration/events"
)

// CreateTaskRequest is the body of POST /v1/tasks.
type CreateTaskRequest struct {
	MissionID      string  `json:"mission_id"`
	Title          string  `json:"title"`
	AssignedCrabID *string `json:"assigned_crab_id"`
	Status         *string `json:"status"`
}

// CreateTask adds an ad-hoc task to a mission, outside any workflow.
// Pre-assigning a crab marks it busy on the spot.
func (s *Service) CreateTask(ctx context.Context, req CreateTaskRequest) (domain.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return domain.Task{}, BadRequest("title is required")
	}
	status := domain.TaskQueued
	if req.Status != nil {
		status = domain.ParseTaskStatus(*req.Status)
	}

	var task domain.Task
	err := s.mutate(ctx, "create_task", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		if _, err := sqlite.GetMission(ctx, tx, req.MissionID); err != nil {
			if errors.Is(err, sqlite.ErrMissionNotFound) {
				return NotFound("mission_id not found")
			}
			return err
		}

		now := domain.NowMS()
		task = domain.Task{
			TaskID:         domain.NewID(),
			MissionID:      req.MissionID,
			Title:          req.Title,
			AssignedCrabID: req.AssignedCrabID,
			Status:         status,
			CreatedAtMS:    now,
			UpdatedAtMS:    now,
		}
		if err := sqlite.InsertTask(ctx, tx, task); err != nil {
			return err
		}
		if req.AssignedCrabID != nil {
			if err := sqlite.SetCrabState(ctx, tx, *req.AssignedCrabID, domain.CrabBusy, &task.TaskID, nil, now); err != nil {
				return err
			}
			if crab, err := sqlite.GetCrab(ctx, tx, *req.AssignedCrabID); err == nil {
				out.event(events.CrabUpdated(crab))
			}
		}
		out.event(events.TaskCreated(task))

		return s.schedule(ctx, tx, out)
	})
	return task, err
}

// ListTasks returns every task, most recently updated first.
func (s *Service) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	err := s.view(ctx, func(q sqlite.Querier) error {
		var err error
		tasks, err = sqlite.ListTasks(ctx, q)
		return err
	})
	return tasks, err
}
