package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/crabitat/crabitat/internal/cachemanager"
	"github.com/crabitat/crabitat/internal/log"
)

const defaultBaseURL = "https://api.github.com"

// GitHubConfig configures the GitHub client.
type GitHubConfig struct {
	// BaseURL overrides the API endpoint, mainly for tests and GHE.
	BaseURL string
	// Token authenticates requests. Falls back to GITHUB_TOKEN.
	Token string
	// CacheTTL bounds how stale issue and PR responses may be.
	CacheTTL time.Duration
	// DisableCache forces every lookup to hit the API.
	DisableCache bool
	// HTTPClient overrides the default 10s-timeout client.
	HTTPClient *http.Client
}

// GitHub implements Client against the GitHub REST API.
type GitHub struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cacheTTL   time.Duration
	issues     *cachemanager.ReadThroughCache[string, []Issue, string]
	prs        *cachemanager.ReadThroughCache[string, PRStatus, prQuery]
}

type prQuery struct {
	repo   string
	number int64
}

// NewGitHub creates a GitHub client with read-through caches in front of
// the issue and pull request endpoints.
func NewGitHub(cfg GitHubConfig) *GitHub {
	g := &GitHub{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: cfg.HTTPClient,
		cacheTTL:   cfg.CacheTTL,
	}
	if g.baseURL == "" {
		g.baseURL = defaultBaseURL
	}
	if g.token == "" {
		g.token = os.Getenv("GITHUB_TOKEN")
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if g.cacheTTL <= 0 {
		g.cacheTTL = cachemanager.DefaultExpiration
	}

	issueCache := cachemanager.NewInMemoryCacheManager[string, []Issue](
		"forge-issues", g.cacheTTL, cachemanager.DefaultCleanupInterval)
	g.issues = cachemanager.NewReadThroughCache(issueCache, g.fetchOpenIssues, cfg.DisableCache)

	prCache := cachemanager.NewInMemoryCacheManager[string, PRStatus](
		"forge-prs", g.cacheTTL, cachemanager.DefaultCleanupInterval)
	g.prs = cachemanager.NewReadThroughCache(prCache, g.fetchPRStatus, cfg.DisableCache)

	return g
}

// ListOpenIssues returns the repo's open issues, pull requests excluded.
func (g *GitHub) ListOpenIssues(ctx context.Context, repo string) ([]Issue, error) {
	return g.issues.Get(ctx, "issues:"+repo, repo, g.cacheTTL)
}

// GetIssue fetches a single issue. Not cached; it backs one-shot queue
// operations rather than polling.
func (g *GitHub) GetIssue(ctx context.Context, repo string, number int64) (Issue, error) {
	var raw ghIssue
	url := fmt.Sprintf("%s/repos/%s/issues/%d", g.baseURL, repo, number)
	if err := g.getJSON(ctx, url, &raw); err != nil {
		return Issue{}, err
	}
	if raw.PullRequest != nil {
		// The issues endpoint also serves PRs; a PR is not queueable.
		return Issue{}, ErrNotFound
	}
	return raw.toIssue(), nil
}

// GetPRStatus returns the pull request's current state.
func (g *GitHub) GetPRStatus(ctx context.Context, repo string, number int64) (PRStatus, error) {
	key := fmt.Sprintf("pr:%s#%d", repo, number)
	return g.prs.Get(ctx, key, prQuery{repo: repo, number: number}, g.cacheTTL)
}

type ghLabel struct {
	Name string `json:"name"`
}

type ghIssue struct {
	Number      int64     `json:"number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	Labels      []ghLabel `json:"labels"`
	PullRequest *struct{} `json:"pull_request"`
}

func (i ghIssue) toIssue() Issue {
	out := Issue{Number: i.Number, Title: i.Title, Body: i.Body, State: i.State}
	for _, l := range i.Labels {
		out.Labels = append(out.Labels, l.Name)
	}
	return out
}

func (g *GitHub) fetchOpenIssues(ctx context.Context, repo string) ([]Issue, error) {
	const perPage = 100
	var out []Issue
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/issues?state=open&per_page=%d&page=%d",
			g.baseURL, repo, perPage, page)

		var raw []ghIssue
		if err := g.getJSON(ctx, url, &raw); err != nil {
			return nil, err
		}
		for _, i := range raw {
			if i.PullRequest != nil {
				continue
			}
			out = append(out, i.toIssue())
		}
		if len(raw) < perPage {
			return out, nil
		}
	}
}

func (g *GitHub) fetchPRStatus(ctx context.Context, q prQuery) (PRStatus, error) {
	var status PRStatus
	url := fmt.Sprintf("%s/repos/%s/pulls/%d", g.baseURL, q.repo, q.number)
	if err := g.getJSON(ctx, url, &status); err != nil {
		return PRStatus{}, err
	}
	return status, nil
}

func (g *GitHub) getJSON(ctx context.Context, url string, out any) error {
	resp, err := g.doRequest(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("forge returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode forge response: %w", err)
	}
	return nil
}

// doRequest issues one API call, retrying a single time when the forge
// answers 429 with a Retry-After hint.
func (g *GitHub) doRequest(ctx context.Context, method, url string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create forge request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if g.token != "" {
			req.Header.Set("Authorization", "Bearer "+g.token)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("forge request: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			delay := retryAfter(resp)
			_ = resp.Body.Close()
			log.Warn(log.CatForge, "rate limited", "url", url, "retry_in", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		return resp, nil
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Second
}
