package forge

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Client for tests.
type Fake struct {
	mu      sync.Mutex
	issues  map[string][]Issue
	prs     map[string]PRStatus
	prCalls int
	err     error
}

// NewFake creates an empty fake forge.
func NewFake() *Fake {
	return &Fake{
		issues: make(map[string][]Issue),
		prs:    make(map[string]PRStatus),
	}
}

// AddIssue registers an open issue under the repo.
func (f *Fake) AddIssue(repo string, issue Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[repo] = append(f.issues[repo], issue)
}

// SetPR sets the status returned for a pull request.
func (f *Fake) SetPR(repo string, status PRStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs[prKey(repo, status.Number)] = status
}

// FailWith makes every call return err until reset with nil.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fake) ListOpenIssues(ctx context.Context, repo string) ([]Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Issue(nil), f.issues[repo]...), nil
}

func (f *Fake) GetIssue(ctx context.Context, repo string, number int64) (Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Issue{}, f.err
	}
	for _, issue := range f.issues[repo] {
		if issue.Number == number {
			return issue, nil
		}
	}
	return Issue{}, ErrNotFound
}

func (f *Fake) GetPRStatus(ctx context.Context, repo string, number int64) (PRStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prCalls++
	if f.err != nil {
		return PRStatus{}, f.err
	}
	status, ok := f.prs[prKey(repo, number)]
	if !ok {
		return PRStatus{}, ErrNotFound
	}
	return status, nil
}

// PRStatusCalls reports how many times GetPRStatus was invoked.
func (f *Fake) PRStatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prCalls
}

func prKey(repo string, number int64) string {
	return fmt.Sprintf("%s#%d", repo, number)
}
