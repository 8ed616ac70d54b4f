// Package events defines the typed event frames broadcast to console
// subscribers. Every frame serializes as a flat JSON object carrying a
// "type" discriminant alongside the payload fields, so consumers can
// switch on type without unwrapping an envelope.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/crabitat/crabitat/internal/domain"
)

// Type identifies the kind of console event.
type Type string

const (
	// TypeSnapshot carries a full status bundle. Sent on connect and
	// whenever a subscriber falls behind.
	TypeSnapshot Type = "snapshot"
	// TypeCrabUpdated is emitted when a crab registers, changes state,
	// or goes offline.
	TypeCrabUpdated Type = "crab_updated"
	// TypeColonyCreated is emitted when a colony is created.
	TypeColonyCreated Type = "colony_created"
	// TypeMissionCreated is emitted when a mission is created.
	TypeMissionCreated Type = "mission_created"
	// TypeMissionUpdated is emitted when a mission's status, queue
	// position, or PR number changes.
	TypeMissionUpdated Type = "mission_updated"
	// TypeTaskCreated is emitted when a task is created.
	TypeTaskCreated Type = "task_created"
	// TypeTaskUpdated is emitted when a task changes status or assignment.
	TypeTaskUpdated Type = "task_updated"
	// TypeRunCreated is emitted when a run starts.
	TypeRunCreated Type = "run_created"
	// TypeRunUpdated is emitted when a run reports progress.
	TypeRunUpdated Type = "run_updated"
	// TypeRunCompleted is emitted when a run reaches a terminal status.
	TypeRunCompleted Type = "run_completed"
)

// String returns the string representation of the Type.
func (t Type) String() string {
	return string(t)
}

// Event is one console frame. Payload must marshal to a JSON object;
// its fields are merged with the type discriminant at the top level.
type Event struct {
	Type    Type
	Payload any
}

// MarshalJSON flattens the payload fields into the frame alongside
// "type". A payload that does not serialize as an object lands under a
// "payload" key instead of corrupting the frame.
func (e Event) MarshalJSON() ([]byte, error) {
	frame := map[string]any{"type": string(e.Type)}

	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Type, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err == nil {
			for k, v := range fields {
				if k == "type" {
					continue
				}
				frame[k] = v
			}
		} else {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("failed to flatten %s payload: %w", e.Type, err)
			}
			frame["payload"] = v
		}
	}

	return json.Marshal(frame)
}

type crabPayload struct {
	Crab domain.Crab `json:"crab"`
}

type colonyPayload struct {
	Colony domain.Colony `json:"colony"`
}

type missionPayload struct {
	Mission domain.Mission `json:"mission"`
}

type taskPayload struct {
	Task domain.Task `json:"task"`
}

type runPayload struct {
	Run domain.Run `json:"run"`
}

// Snapshot builds a snapshot frame from a full status bundle.
func Snapshot(s domain.StatusSnapshot) Event {
	return Event{Type: TypeSnapshot, Payload: s}
}

// CrabUpdated builds a crab_updated frame.
func CrabUpdated(c domain.Crab) Event {
	return Event{Type: TypeCrabUpdated, Payload: crabPayload{Crab: c}}
}

// ColonyCreated builds a colony_created frame.
func ColonyCreated(c domain.Colony) Event {
	return Event{Type: TypeColonyCreated, Payload: colonyPayload{Colony: c}}
}

// MissionCreated builds a mission_created frame.
func MissionCreated(m domain.Mission) Event {
	return Event{Type: TypeMissionCreated, Payload: missionPayload{Mission: m}}
}

// MissionUpdated builds a mission_updated frame.
func MissionUpdated(m domain.Mission) Event {
	return Event{Type: TypeMissionUpdated, Payload: missionPayload{Mission: m}}
}

// TaskCreated builds a task_created frame.
func TaskCreated(t domain.Task) Event {
	return Event{Type: TypeTaskCreated, Payload: taskPayload{Task: t}}
}

// TaskUpdated builds a task_updated frame.
func TaskUpdated(t domain.Task) Event {
	return Event{Type: TypeTaskUpdated, Payload: taskPayload{Task: t}}
}

// RunCreated builds a run_created frame.
func RunCreated(r domain.Run) Event {
	return Event{Type: TypeRunCreated, Payload: runPayload{Run: r}}
}

// RunUpdated builds a run_updated frame.
func RunUpdated(r domain.Run) Event {
	return Event{Type: TypeRunUpdated, Payload: runPayload{Run: r}}
}

// RunCompleted builds a run_completed frame.
func RunCompleted(r domain.Run) Event {
	return Event{Type: TypeRunCompleted, Payload: runPayload{Run: r}}
}
