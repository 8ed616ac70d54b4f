// Package domain holds the core entities shared by the control plane, its
// storage layer, and the wire protocol: colonies, crabs, missions, tasks,
// and runs, plus the status machines that connect them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh identifier for any entity.
func NewID() string { return uuid.NewString() }

// NowMS returns the current wall-clock time in Unix milliseconds.
// All persisted timestamps use this resolution.
func NowMS() int64 { return time.Now().UnixMilli() }

// MissionWorktree returns the conventional burrow path for a mission's
// dedicated git worktree.
func MissionWorktree(missionID string) string {
	return "burrows/mission-" + missionID
}
