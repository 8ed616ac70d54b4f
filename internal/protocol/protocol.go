// Package protocol defines the websocket envelope exchanged between the
// control plane and worker crabs. Every message is an Envelope whose Kind
// carries a type tag plus a payload object shaped by that tag.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/crabitat/crabitat/internal/domain"
)

// KindType discriminates envelope payloads.
type KindType string

const (
	KindTaskAssigned KindType = "task_assigned"
	KindTaskProgress KindType = "task_progress"
	KindRunUpdate    KindType = "run_update"
	KindRunComplete  KindType = "run_complete"
	KindHeartbeat    KindType = "heartbeat"
)

// MessageKind is the tagged payload of an envelope.
type MessageKind struct {
	Type    KindType        `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewKind builds a MessageKind from a payload value.
func NewKind(t KindType, payload any) (MessageKind, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return MessageKind{}, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	return MessageKind{Type: t, Payload: raw}, nil
}

// DecodePayload unmarshals a kind's payload into T.
func DecodePayload[T any](k MessageKind) (T, error) {
	var v T
	if err := json.Unmarshal(k.Payload, &v); err != nil {
		return v, fmt.Errorf("decoding %s payload: %w", k.Type, err)
	}
	return v, nil
}

// Envelope is one message on the crab websocket, in either direction.
type Envelope struct {
	MessageID string      `json:"message_id"`
	MissionID *string     `json:"mission_id,omitempty"`
	TaskID    *string     `json:"task_id,omitempty"`
	RunID     *string     `json:"run_id,omitempty"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Kind      MessageKind `json:"kind"`
	SentAtMS  int64       `json:"sent_at_ms"`
}

// NewEnvelope stamps a fresh envelope with a message id and send time.
func NewEnvelope(from, to string, kind MessageKind) Envelope {
	return Envelope{
		MessageID: uuid.NewString(),
		From:      from,
		To:        to,
		Kind:      kind,
		SentAtMS:  domain.NowMS(),
	}
}

// TaskAssigned tells a crab to begin work on a task. Workflow-expanded
// tasks carry the step fields; ad-hoc tasks leave them nil.
type TaskAssigned struct {
	TaskID        string  `json:"task_id"`
	MissionID     string  `json:"mission_id"`
	Title         string  `json:"title"`
	MissionPrompt string  `json:"mission_prompt"`
	DesiredStatus string  `json:"desired_status"`
	StepID        *string `json:"step_id,omitempty"`
	Role          *string `json:"role,omitempty"`
	Prompt        *string `json:"prompt,omitempty"`
	Context       *string `json:"context,omitempty"`
	WorktreePath  *string `json:"worktree_path,omitempty"`
}

// TaskProgress is a free-text progress note for a task in flight.
type TaskProgress struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// RunUpdate patches a run in flight. It carries the same fields as the
// POST /v1/runs/update body so both transports feed one operation.
type RunUpdate struct {
	RunID           string                  `json:"run_id"`
	Status          *domain.RunStatus       `json:"status,omitempty"`
	ProgressMessage *string                 `json:"progress_message,omitempty"`
	TokenUsage      *domain.TokenUsagePatch `json:"token_usage,omitempty"`
	Timing          *domain.TimingPatch     `json:"timing,omitempty"`
}

// RunComplete reports that a run reached a terminal status.
type RunComplete struct {
	RunID      string                  `json:"run_id"`
	Status     domain.RunStatus        `json:"status"`
	Summary    *string                 `json:"summary,omitempty"`
	TokenUsage *domain.TokenUsagePatch `json:"token_usage,omitempty"`
	Timing     *domain.TimingPatch     `json:"timing,omitempty"`
}

// Heartbeat is a keepalive from a crab.
type Heartbeat struct {
	CrabID  string `json:"crab_id"`
	Healthy bool   `json:"healthy"`
}
