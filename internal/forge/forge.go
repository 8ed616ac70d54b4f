// Package forge talks to the code host that colonies are bound to:
// listing open issues for the mission queue and polling pull request
// state for merge-wait steps.
package forge

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the forge does not know the requested
// issue or pull request.
var ErrNotFound = errors.New("forge: not found")

// Issue is a forge issue, the raw material for queued missions.
type Issue struct {
	Number int64    `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	State  string   `json:"state"`
	Labels []string `json:"labels"`
}

// PROutcome classifies a pull request for the merge-wait poller.
type PROutcome string

const (
	PROpen   PROutcome = "open"
	PRMerged PROutcome = "merged"
	PRClosed PROutcome = "closed"
)

// PRStatus is the state of a pull request as reported by the forge.
type PRStatus struct {
	Number   int64   `json:"number"`
	State    string  `json:"state"` // open or closed
	Merged   bool    `json:"merged"`
	MergedAt *string `json:"merged_at"`
}

// Outcome folds state and merged into the three cases the poller acts on.
func (s PRStatus) Outcome() PROutcome {
	switch {
	case s.Merged:
		return PRMerged
	case s.State == "closed":
		return PRClosed
	default:
		return PROpen
	}
}

// Client is the forge surface the control plane depends on. Repo names
// are "owner/name".
type Client interface {
	ListOpenIssues(ctx context.Context, repo string) ([]Issue, error)
	GetIssue(ctx context.Context, repo string, number int64) (Issue, error)
	GetPRStatus(ctx context.Context, repo string, number int64) (PRStatus, error)
}
