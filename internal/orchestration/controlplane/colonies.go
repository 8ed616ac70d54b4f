package controlplane

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/forge"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
)

// CreateColonyRequest is the body of POST /v1/colonies.
type CreateColonyRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Repo        *string `json:"repo"`
}

// UpdateColonyRequest is the body of PATCH /v1/colonies/{id}. Nil fields
// stay untouched; an empty repo string unbinds the repository.
type UpdateColonyRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Repo        *string `json:"repo"`
}

// ColonyIssue is an open forge issue annotated with its queue state.
type ColonyIssue struct {
	forge.Issue
	AlreadyQueued bool `json:"already_queued"`
}

// validRepo reports whether repo looks like "owner/name".
func validRepo(repo string) bool {
	owner, name, ok := strings.Cut(repo, "/")
	return ok && owner != "" && name != "" && !strings.Contains(name, "/")
}

// CreateColony registers a repository workspace.
func (s *Service) CreateColony(ctx context.Context, req CreateColonyRequest) (domain.Colony, error) {
	if strings.TrimSpace(req.Name) == "" {
		return domain.Colony{}, BadRequest("name is required")
	}
	if req.Repo != nil && !validRepo(*req.Repo) {
		return domain.Colony{}, BadRequest("repo must look like owner/name")
	}

	colony := domain.Colony{
		ColonyID:    domain.NewID(),
		Name:        req.Name,
		Description: req.Description,
		Repo:        req.Repo,
		CreatedAtMS: domain.NowMS(),
	}
	err := s.mutate(ctx, "create_colony", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		if err := sqlite.InsertColony(ctx, tx, colony); err != nil {
			return err
		}
		log.Info(log.CatQueue, "Colony created", "colony", colony.ColonyID, "name", colony.Name)
		out.event(events.ColonyCreated(colony))
		return nil
	})
	return colony, err
}

// UpdateColony patches a colony's name, description, or repo binding.
func (s *Service) UpdateColony(ctx context.Context, colonyID string, req UpdateColonyRequest) (domain.Colony, error) {
	if req.Repo != nil && *req.Repo != "" && !validRepo(*req.Repo) {
		return domain.Colony{}, BadRequest("repo must look like owner/name")
	}

	var colony domain.Colony
	err := s.mutate(ctx, "update_colony", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		var err error
		colony, err = sqlite.GetColony(ctx, tx, colonyID)
		if err != nil {
			if errors.Is(err, sqlite.ErrColonyNotFound) {
				return NotFound("colony_id not found")
			}
			return err
		}
		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				return BadRequest("name is required")
			}
			colony.Name = *req.Name
		}
		if req.Description != nil {
			colony.Description = *req.Description
		}
		if req.Repo != nil {
			if *req.Repo == "" {
				colony.Repo = nil
			} else {
				colony.Repo = req.Repo
			}
		}
		return sqlite.UpdateColony(ctx, tx, colony)
	})
	return colony, err
}

// ListColonies returns every colony, oldest first.
func (s *Service) ListColonies(ctx context.Context) ([]domain.Colony, error) {
	var colonies []domain.Colony
	err := s.view(ctx, func(q sqlite.Querier) error {
		var err error
		colonies, err = sqlite.ListColonies(ctx, q)
		return err
	})
	return colonies, err
}

// ColonyIssues lists the open issues of the colony's bound repository,
// marking the ones already attached to a queued mission. The forge call
// happens outside the store lock.
func (s *Service) ColonyIssues(ctx context.Context, colonyID string) ([]ColonyIssue, error) {
	if s.forge == nil {
		return nil, BadRequest("forge is not configured")
	}

	var repo string
	var queued map[int64]bool
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
		queued, err = sqlite.QueuedIssueNumbers(ctx, q, colonyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	issues, err := s.forge.ListOpenIssues(ctx, repo)
	if err != nil {
		return nil, Internal("failed to list open issues: %v", err)
	}
	out := make([]ColonyIssue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, ColonyIssue{Issue: issue, AlreadyQueued: queued[issue.Number]})
	}
	return out, nil
}
