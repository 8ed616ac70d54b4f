package controlplane

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
)

// StartRunRequest is the body of POST /v1/runs/start.
type StartRunRequest struct {
	RunID           *string `json:"run_id"`
	MissionID       string  `json:"mission_id"`
	TaskID          string  `json:"task_id"`
	CrabID          string  `json:"crab_id"`
	BurrowPath      string  `json:"burrow_path"`
	BurrowMode      string  `json:"burrow_mode"`
	Status          *string `json:"status"`
	ProgressMessage *string `json:"progress_message"`
}

// UpdateRunRequest is the body of POST /v1/runs/update. Nil fields stay
// untouched; token and timing patches merge field by field.
type UpdateRunRequest struct {
	RunID           string                  `json:"run_id"`
	Status          *string                 `json:"status"`
	ProgressMessage *string                 `json:"progress_message"`
	TokenUsage      *domain.TokenUsagePatch `json:"token_usage"`
	Timing          *domain.TimingPatch     `json:"timing"`
}

// CompleteRunRequest is the body of POST /v1/runs/complete.
type CompleteRunRequest struct {
	RunID      string                  `json:"run_id"`
	Status     string                  `json:"status"`
	Summary    *string                 `json:"summary"`
	TokenUsage *domain.TokenUsagePatch `json:"token_usage"`
	Timing     *domain.TimingPatch     `json:"timing"`
}

// StartRun records a new attempt at a task. The task goes to running
// with the crab attached, and the crab to busy. Callers may bring their
// own run id; a duplicate is a bad request.
func (s *Service) StartRun(ctx context.Context, req StartRunRequest) (domain.Run, error) {
	if strings.TrimSpace(req.BurrowPath) == "" {
		return domain.Run{}, BadRequest("burrow_path is required")
	}

	runID := domain.NewID()
	if req.RunID != nil && *req.RunID != "" {
		runID = *req.RunID
	}
	status := domain.RunRunning
	if req.Status != nil {
		status = domain.ParseRunStatus(*req.Status)
	}
	progress := "run started"
	if req.ProgressMessage != nil {
		progress = *req.ProgressMessage
	}

	var run domain.Run
	err := s.mutate(ctx, "start_run", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		if _, err := sqlite.GetMission(ctx, tx, req.MissionID); err != nil {
			if errors.Is(err, sqlite.ErrMissionNotFound) {
				return NotFound("mission_id not found")
			}
			return err
		}
		if _, err := sqlite.GetTask(ctx, tx, req.TaskID); err != nil {
			if errors.Is(err, sqlite.ErrTaskNotFound) {
				return NotFound("task_id not found")
			}
			return err
		}

		now := domain.NowMS()
		if err := sqlite.InsertRun(ctx, tx, domain.Run{
			RunID:           runID,
			MissionID:       req.MissionID,
			TaskID:          req.TaskID,
			CrabID:          req.CrabID,
			Status:          status,
			BurrowPath:      req.BurrowPath,
			BurrowMode:      domain.ParseBurrowMode(req.BurrowMode),
			ProgressMessage: progress,
			StartedAtMS:     now,
			UpdatedAtMS:     now,
		}); err != nil {
			return BadRequest("failed to start run: %v", err)
		}

		if err := sqlite.SetTaskRunning(ctx, tx, req.TaskID, req.CrabID, now); err != nil {
			return err
		}
		if err := sqlite.SetCrabState(ctx, tx, req.CrabID, domain.CrabBusy, &req.TaskID, &runID, now); err != nil {
			return err
		}

		var err error
		run, err = sqlite.GetRun(ctx, tx, runID)
		if err != nil {
			return Internal("failed to reload run after start")
		}
		log.Info(log.CatSched, "Run started",
			"run", runID, "task", req.TaskID, "crab", req.CrabID)
		out.event(events.RunCreated(run))
		if task, err := sqlite.GetTask(ctx, tx, req.TaskID); err == nil {
			out.event(events.TaskUpdated(task))
		}
		if crab, err := sqlite.GetCrab(ctx, tx, req.CrabID); err == nil {
			out.event(events.CrabUpdated(crab))
		}
		return nil
	})
	return run, err
}

// UpdateRun patches a run in flight. A terminal status in the patch is
// treated exactly like a completion: the run gets its completed_at
// stamp, the task and crab settle, and the cascade fires. A run that
// already settled rejects further patches.
func (s *Service) UpdateRun(ctx context.Context, req UpdateRunRequest) (domain.Run, error) {
	var run domain.Run
	err := s.mutate(ctx, "update_run", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		existing, err := sqlite.GetRun(ctx, tx, req.RunID)
		if err != nil {
			if errors.Is(err, sqlite.ErrRunNotFound) {
				return NotFound("run_id not found")
			}
			return err
		}
		if existing.Status.Terminal() {
			return BadRequest("run is already completed")
		}

		now := domain.NowMS()
		existing.Metrics.Merge(req.TokenUsage, req.Timing)
		if req.ProgressMessage != nil {
			existing.ProgressMessage = *req.ProgressMessage
		}
		status := existing.Status
		if req.Status != nil {
			status = domain.ParseRunStatus(*req.Status)
		}
		existing.Status = status
		existing.UpdatedAtMS = now
		if status.Terminal() {
			existing.CompletedAtMS = &now
		}
		if err := sqlite.UpdateRunRow(ctx, tx, existing); err != nil {
			return err
		}

		run, err = sqlite.GetRun(ctx, tx, req.RunID)
		if err != nil {
			return Internal("failed to reload run after update")
		}
		if status.Terminal() {
			out.event(events.RunCompleted(run))
		} else {
			out.event(events.RunUpdated(run))
		}

		switch status {
		case domain.RunRunning:
			if err := sqlite.SetTaskRunning(ctx, tx, existing.TaskID, existing.CrabID, now); err != nil {
				return err
			}
			if err := sqlite.SetCrabState(ctx, tx, existing.CrabID, domain.CrabBusy, &existing.TaskID, &existing.RunID, now); err != nil {
				return err
			}
			if task, err := sqlite.GetTask(ctx, tx, existing.TaskID); err == nil {
				out.event(events.TaskUpdated(task))
			}
			if crab, err := sqlite.GetCrab(ctx, tx, existing.CrabID); err == nil {
				out.event(events.CrabUpdated(crab))
			}
		case domain.RunBlocked:
			if err := setTaskStatus(ctx, tx, out, existing.TaskID, domain.TaskBlocked); err != nil {
				return err
			}
		case domain.RunCompleted, domain.RunFailed:
			if err := s.settleRun(ctx, tx, out, existing); err != nil {
				return err
			}
		}
		return nil
	})
	return run, err
}

// CompleteRun finishes a run. Only completed and failed are accepted,
// and a run completes once; the summary lands on the run row where the
// cascade reads it back as dependency context.
func (s *Service) CompleteRun(ctx context.Context, req CompleteRunRequest) (domain.Run, error) {
	status := domain.ParseRunStatus(req.Status)
	if !status.Terminal() {
		return domain.Run{}, BadRequest("status must be completed or failed for /v1/runs/complete")
	}

	var run domain.Run
	err := s.mutate(ctx, "complete_run", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		existing, err := sqlite.GetRun(ctx, tx, req.RunID)
		if err != nil {
			if errors.Is(err, sqlite.ErrRunNotFound) {
				return NotFound("run_id not found")
			}
			return err
		}
		if existing.Status.Terminal() {
			return BadRequest("run is already completed")
		}

		now := domain.NowMS()
		existing.Metrics.Merge(req.TokenUsage, req.Timing)
		existing.Status = status
		existing.Summary = req.Summary
		existing.UpdatedAtMS = now
		existing.CompletedAtMS = &now
		if err := sqlite.UpdateRunRow(ctx, tx, existing); err != nil {
			return err
		}

		run, err = sqlite.GetRun(ctx, tx, req.RunID)
		if err != nil {
			return Internal("failed to reload run after completion")
		}
		log.Info(log.CatSched, "Run completed",
			"run", run.RunID, "task", run.TaskID, "status", status)
		out.event(events.RunCompleted(run))

		return s.settleRun(ctx, tx, out, existing)
	})
	return run, err
}

// ListRuns returns every run, most recently updated first.
func (s *Service) ListRuns(ctx context.Context) ([]domain.Run, error) {
	var runs []domain.Run
	err := s.view(ctx, func(q sqlite.Querier) error {
		var err error
		runs, err = sqlite.ListRuns(ctx, q)
		return err
	})
	return runs, err
}

// settleRun mirrors a terminal run onto its task, frees the crab, then
// cascades and reschedules. The run row must already be persisted with
// its terminal status.
func (s *Service) settleRun(ctx context.Context, tx *sql.Tx, out *sink, run domain.Run) error {
	taskStatus := domain.TaskCompleted
	if run.Status == domain.RunFailed {
		taskStatus = domain.TaskFailed
	}
	if err := setTaskStatus(ctx, tx, out, run.TaskID, taskStatus); err != nil {
		return err
	}
	if err := s.releaseCrab(ctx, tx, out, run.CrabID); err != nil {
		return err
	}
	if err := s.cascade(ctx, tx, out, run.MissionID, run.TaskID); err != nil {
		return err
	}
	return s.schedule(ctx, tx, out)
}

// releaseCrab idles the crab and clears its current references. Unknown
// ids (the poller's synthetic runs) are a no-op.
func (s *Service) releaseCrab(ctx context.Context, tx *sql.Tx, out *sink, crabID string) error {
	if err := sqlite.SetCrabState(ctx, tx, crabID, domain.CrabIdle, nil, nil, domain.NowMS()); err != nil {
		return err
	}
	crab, err := sqlite.GetCrab(ctx, tx, crabID)
	if err != nil {
		if errors.Is(err, sqlite.ErrCrabNotFound) {
			return nil
		}
		return err
	}
	out.event(events.CrabUpdated(crab))
	return nil
}
