// Package controlplane implements the crabitat service core. Every state
// mutation flows through a single transactional envelope: take the store
// lock, run the operation plus the cascade, queue activation, and
// scheduler inside one transaction, commit, release the lock, and only
// then deliver console events and assignment envelopes.
package controlplane

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/crabitat/crabitat/internal/forge"
	"github.com/crabitat/crabitat/internal/infrastructure/sqlite"
	"github.com/crabitat/crabitat/internal/orchestration/events"
	"github.com/crabitat/crabitat/internal/orchestration/session"
	"github.com/crabitat/crabitat/internal/orchestration/tracing"
	"github.com/crabitat/crabitat/internal/protocol"
	"github.com/crabitat/crabitat/internal/workflow"
)

// controlPlaneActor is the From field on envelopes the service sends.
const controlPlaneActor = "control-plane"

// Config configures the Service.
type Config struct {
	// Store holds all persistent state.
	Store *sqlite.DB
	// Workflows resolves manifest names at mission creation and queue
	// activation time.
	Workflows *workflow.Registry
	// Sessions tracks connected crab websockets for envelope dispatch.
	Sessions *session.Registry
	// Events receives console events after each commit.
	Events *events.Bus
	// Forge is the issue/PR backend (optional). Endpoints that need it
	// fail with bad_request when unset; the merge-wait poller idles.
	Forge forge.Client
	// Tracer records operation spans (optional).
	Tracer trace.Tracer
}

// Validate checks that all required fields are provided.
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("Store is required")
	}
	if c.Workflows == nil {
		return fmt.Errorf("Workflows is required")
	}
	if c.Sessions == nil {
		return fmt.Errorf("Sessions is required")
	}
	if c.Events == nil {
		return fmt.Errorf("Events is required")
	}
	return nil
}

// Service is the control plane core shared by the HTTP API, the crab
// websocket handler, and the merge-wait poller.
type Service struct {
	// mu serializes all store access. It spans the whole mutating
	// transaction including cascade and scheduling, and is released
	// before dispatch: a crab session with a full outbound queue must
	// never be able to stall a lock holder.
	mu        sync.Mutex
	store     *sqlite.DB
	workflows *workflow.Registry
	sessions  *session.Registry
	events    *events.Bus
	forge     forge.Client
	tracer    trace.Tracer
}

// New creates a Service from the configuration.
func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Service{
		store:     cfg.Store,
		workflows: cfg.Workflows,
		sessions:  cfg.Sessions,
		events:    cfg.Events,
		forge:     cfg.Forge,
		tracer:    cfg.Tracer,
	}, nil
}

// WorkflowNames lists the registered workflow manifests. The registry is
// immutable after load, so no lock is taken.
func (s *Service) WorkflowNames() []string {
	return s.workflows.Names()
}

// dispatch is one assignment envelope bound for a crab, delivered after
// the transaction commits.
type dispatch struct {
	crabID   string
	envelope protocol.Envelope
}

// sink collects the console events and assignment envelopes an operation
// produces inside its transaction, for delivery after commit.
type sink struct {
	events     []events.Event
	dispatches []dispatch
}

func (s *sink) event(e events.Event) {
	s.events = append(s.events, e)
}

func (s *sink) send(crabID string, env protocol.Envelope) {
	s.dispatches = append(s.dispatches, dispatch{crabID: crabID, envelope: env})
}

// mutate runs fn inside the store lock and one transaction, then
// delivers the sink's events and envelopes with no lock held. A failed
// transaction delivers nothing.
func (s *Service) mutate(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx, out *sink) error) error {
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, tracing.SpanPrefixOp+op)
		defer span.End()
	}

	out := &sink{}
	s.mu.Lock()
	err := s.store.InTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, tx, out)
	})
	s.mu.Unlock()

	if err != nil {
		if span != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
	s.deliver(out)
	return nil
}

// view runs fn under the store lock for the duration of the query only.
func (s *Service) view(ctx context.Context, fn func(q sqlite.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.InView(ctx, fn)
}

func (s *Service) deliver(out *sink) {
	for _, e := range out.events {
		s.events.Publish(e)
	}
	for _, d := range out.dispatches {
		s.sessions.Send(d.crabID, d.envelope)
	}
}
