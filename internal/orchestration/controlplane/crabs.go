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

// RegisterCrabRequest is the body of POST /v1/crabs/register.
type RegisterCrabRequest struct {
	CrabID   string  `json:"crab_id"`
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	ColonyID string  `json:"colony_id"`
	State    *string `json:"state"`
}

// RegisterCrab creates or updates a crab. Re-registration keeps the
// colony binding and any current task/run references; name, role, and
// state follow the request. Every registration ends with a scheduler
// tick so work parked while the crab was away gets dispatched.
func (s *Service) RegisterCrab(ctx context.Context, req RegisterCrabRequest) (domain.Crab, error) {
	if strings.TrimSpace(req.CrabID) == "" ||
		strings.TrimSpace(req.Name) == "" ||
		strings.TrimSpace(req.Role) == "" {
		return domain.Crab{}, BadRequest("crab_id, name, and role are required")
	}
	state := domain.CrabIdle
	if req.State != nil {
		state = domain.ParseCrabState(*req.State)
	}

	var crab domain.Crab
	err := s.mutate(ctx, "register_crab", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		colonyID := strings.TrimSpace(req.ColonyID)
		existing, err := sqlite.GetCrab(ctx, tx, req.CrabID)
		switch {
		case err == nil:
			colonyID = existing.ColonyID
		case errors.Is(err, sqlite.ErrCrabNotFound):
			if colonyID != "" {
				if _, err := sqlite.GetColony(ctx, tx, colonyID); err != nil {
					if errors.Is(err, sqlite.ErrColonyNotFound) {
						return NotFound("colony_id not found")
					}
					return err
				}
			}
		default:
			return err
		}

		if req.Role != "any" {
			taken, err := sqlite.RoleTaken(ctx, tx, colonyID, req.Role, req.CrabID)
			if err != nil {
				return err
			}
			if taken {
				return BadRequest("role %q is already taken in this colony", req.Role)
			}
		}

		if err := sqlite.UpsertCrab(ctx, tx, domain.Crab{
			CrabID:      req.CrabID,
			ColonyID:    colonyID,
			Name:        req.Name,
			Role:        req.Role,
			State:       state,
			UpdatedAtMS: domain.NowMS(),
		}); err != nil {
			return err
		}

		crab, err = sqlite.GetCrab(ctx, tx, req.CrabID)
		if err != nil {
			return Internal("failed to reload crab after registration")
		}
		log.Info(log.CatSched, "Crab registered",
			"crab", crab.CrabID, "role", crab.Role, "state", crab.State)
		out.event(events.CrabUpdated(crab))

		return s.schedule(ctx, tx, out)
	})
	return crab, err
}

// ListCrabs returns every crab, ordered by id.
func (s *Service) ListCrabs(ctx context.Context) ([]domain.Crab, error) {
	var crabs []domain.Crab
	err := s.view(ctx, func(q sqlite.Querier) error {
		var err error
		crabs, err = sqlite.ListCrabs(ctx, q)
		return err
	})
	return crabs, err
}

// TouchCrab bumps the crab's heartbeat time. Unknown ids are ignored so
// a stale socket cannot error its way through the log.
func (s *Service) TouchCrab(ctx context.Context, crabID string) error {
	return s.mutate(ctx, "touch_crab", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		known, err := sqlite.TouchCrab(ctx, tx, crabID, domain.NowMS())
		if err != nil || !known {
			return err
		}
		crab, err := sqlite.GetCrab(ctx, tx, crabID)
		if err != nil {
			return err
		}
		out.event(events.CrabUpdated(crab))
		return nil
	})
}

// CrabDisconnected marks a crab offline and clears its current task and
// run references. Called when a worker socket closes.
func (s *Service) CrabDisconnected(ctx context.Context, crabID string) error {
	return s.mutate(ctx, "crab_disconnected", func(ctx context.Context, tx *sql.Tx, out *sink) error {
		if err := sqlite.SetCrabState(ctx, tx, crabID, domain.CrabOffline, nil, nil, domain.NowMS()); err != nil {
			return err
		}
		crab, err := sqlite.GetCrab(ctx, tx, crabID)
		if err != nil {
			if errors.Is(err, sqlite.ErrCrabNotFound) {
				return nil
			}
			return err
		}
		log.Info(log.CatWS, "Crab disconnected", "crab", crabID)
		out.event(events.CrabUpdated(crab))
		return nil
	})
}
