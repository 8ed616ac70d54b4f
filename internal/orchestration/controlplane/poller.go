package controlplane

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/forge"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
)

// systemCrabID is the author of synthetic runs the poller records when
// a pull request merges without a crab doing the merging.
const systemCrabID = "system"

// DefaultPollInterval is how often the merge-wait poller checks PRs.
const DefaultPollInterval = 60 * time.Second

// Poller completes merge-wait tasks by watching their pull requests on
// the forge. Merge-wait tasks are invisible to the scheduler; this is
// the only thing that settles them.
type Poller struct {
	service  *Service
	interval time.Duration
}

// NewPoller creates a poller. A non-positive interval falls back to
// DefaultPollInterval.
func NewPoller(service *Service, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{service: service, interval: interval}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// mergeWaitItem is one pollable task: the PR to watch and where it
// lives. Tasks without a PR number or repo binding never become items.
type mergeWaitItem struct {
	taskID    string
	missionID string
	prNumber  int64
	repo      string
}

// Tick runs one poll cycle: collect pollable merge-wait tasks under the
// view lock, query the forge with no lock held, then settle each
// outcome in its own transaction. Forge errors leave the task queued
// for the next cycle.
func (p *Poller) Tick(ctx context.Context) {
	if p.service.forge == nil {
		log.Debug(log.CatPoller, "No forge configured, skipping merge-wait poll")
		return
	}
	items, err := p.collect(ctx)
	if err != nil {
		log.ErrorErr(log.CatPoller, "Failed to collect merge-wait tasks", err)
		return
	}

	for _, item := range items {
		status, err := p.service.forge.GetPRStatus(ctx, item.repo, item.prNumber)
		if err != nil {
			log.Warn(log.CatPoller, "PR status check failed, will retry",
				"repo", item.repo, "pr", item.prNumber, "error", err)
			continue
		}
		switch status.Outcome() {
		case forge.PRMerged:
			if err := p.service.settleMergeWait(ctx, item, true); err != nil {
				log.ErrorErr(log.CatPoller, "Failed to settle merged PR", err,
					"task", item.taskID)
			}
		case forge.PRClosed:
			if err := p.service.settleMergeWait(ctx, item, false); err != nil {
				log.ErrorErr(log.CatPoller, "Failed to settle closed PR", err,
					"task", item.taskID)
			}
		default:
			// Still open; check again next cycle.
		}
	}
}

// collect gathers queued merge-wait tasks whose mission has a PR number
// and whose colony has a repo bound. Anything else waits.
func (p *Poller) collect(ctx context.Context) ([]mergeWaitItem, error) {
	var items []mergeWaitItem
	err := p.service.view(ctx, func(q sqlite.Querier) error {
		tasks, err := sqlite.ListMergeWaitTasks(ctx, q)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			mission, err := sqlite.GetMission(ctx, q, task.MissionID)
			if err != nil {
				return err
			}
			if mission.PRNumber == nil {
				continue
			}
			colony, err := sqlite.GetColony(ctx, q, mission.ColonyID)
			if err != nil {
				if errors.Is(err, sqlite.ErrColonyNotFound) {
					continue
				}
				return err
			}
			if colony.Repo == nil {
				continue
			}
			items = append(items, mergeWaitItem{
				taskID:    task.TaskID,
				missionID: task.MissionID,
				prNumber:  *mission.PRNumber,
				repo:      *colony.Repo,
			})
		}
		return nil
	})
	return items, err
}

// settleMergeWait finishes one merge-wait task. A merged PR gets a
// synthetic completed run for the record; a closed one just fails the
// task. Either way the cascade and scheduler take it from there.
func (s *Service) settleMergeWait(ctx context.Context, item mergeWaitItem, merged bool) error {
	return s.mutate(ctx, "merge_wait", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		task, err := sqlite.GetTask(ctx, tx, item.taskID)
		if err != nil {
			return err
		}
		// The world may have moved while the forge call was in flight.
		if task.Status != domain.TaskQueued {
			return nil
		}

		now := domain.NowMS()
		if merged {
			summary := fmt.Sprintf("PR #%d merged", item.prNumber)
			run := domain.Run{
				RunID:           domain.NewID(),
				MissionID:       item.missionID,
				TaskID:          item.taskID,
				CrabID:          systemCrabID,
				Status:          domain.RunCompleted,
				BurrowPath:      domain.MissionWorktree(item.missionID),
				BurrowMode:      domain.BurrowWorktree,
				ProgressMessage: summary,
				Summary:         &summary,
				StartedAtMS:     now,
				UpdatedAtMS:     now,
				CompletedAtMS:   &now,
			}
			if err := sqlite.InsertRun(ctx, tx, run); err != nil {
				return err
			}
			log.Info(log.CatPoller, "PR merged, completing merge-wait",
				"task", item.taskID, "pr", item.prNumber)
			out.event(events.RunCreated(run))
			out.event(events.RunCompleted(run))
			return s.settleRun(ctx, tx, out, run)
		}

		log.Info(log.CatPoller, "PR closed without merge, failing merge-wait",
			"task", item.taskID, "pr", item.prNumber)
		if err := setTaskStatus(ctx, tx, out, item.taskID, domain.TaskFailed); err != nil {
			return err
		}
		if err := s.cascade(ctx, tx, out, item.missionID, item.taskID); err != nil {
			return err
		}
		return s.schedule(ctx, tx, out)
	})
}
