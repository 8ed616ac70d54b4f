// Package client is the HTTP and websocket client for a crabitat control
// plane, consumed by the watch, status, and mission commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/orchestration/controlplane"
	"github.com/crabitat/crabitat/internal/orchestration/controlplane/api"
)

// DefaultBaseURL is where a locally served control plane listens.
const DefaultBaseURL = "http://127.0.0.1:8800"

// Config configures the client.
type Config struct {
	// BaseURL locates the control plane, e.g. "http://127.0.0.1:8800".
	BaseURL string
	// HTTPClient overrides the default 10s-timeout client.
	HTTPClient *http.Client
}

// Client talks to one control plane.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

// APIError is a non-2xx reply from the control plane.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control plane: %s (HTTP %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a control-plane 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Health checks that the control plane is reachable.
func (c *Client) Health(ctx context.Context) error {
	var resp api.HealthResponse
	return c.get(ctx, "/healthz", &resp)
}

// === Colonies ===

func (c *Client) CreateColony(ctx context.Context, req controlplane.CreateColonyRequest) (domain.Colony, error) {
	var colony domain.Colony
	err := c.do(ctx, http.MethodPost, "/v1/colonies", req, &colony)
	return colony, err
}

func (c *Client) Colonies(ctx context.Context) ([]domain.Colony, error) {
	var resp api.ListColoniesResponse
	if err := c.get(ctx, "/v1/colonies", &resp); err != nil {
		return nil, err
	}
	return resp.Colonies, nil
}

func (c *Client) UpdateColony(ctx context.Context, colonyID string, req controlplane.UpdateColonyRequest) (domain.Colony, error) {
	var colony domain.Colony
	err := c.do(ctx, http.MethodPatch, "/v1/colonies/"+url.PathEscape(colonyID), req, &colony)
	return colony, err
}

func (c *Client) ColonyIssues(ctx context.Context, colonyID string) ([]controlplane.ColonyIssue, error) {
	var resp api.ColonyIssuesResponse
	if err := c.get(ctx, "/v1/colonies/"+url.PathEscape(colonyID)+"/issues", &resp); err != nil {
		return nil, err
	}
	return resp.Issues, nil
}

// === Queue ===

func (c *Client) Queue(ctx context.Context, colonyID string) ([]domain.Mission, error) {
	var resp api.QueueResponse
	if err := c.get(ctx, "/v1/colonies/"+url.PathEscape(colonyID)+"/queue", &resp); err != nil {
		return nil, err
	}
	return resp.Queue, nil
}

func (c *Client) QueueIssue(ctx context.Context, colonyID string, req controlplane.QueueIssueRequest) (domain.Mission, error) {
	var mission domain.Mission
	err := c.do(ctx, http.MethodPost, "/v1/colonies/"+url.PathEscape(colonyID)+"/queue", req, &mission)
	return mission, err
}

func (c *Client) DequeueMission(ctx context.Context, colonyID, missionID string) error {
	path := "/v1/colonies/" + url.PathEscape(colonyID) + "/queue/" + url.PathEscape(missionID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// === Crabs ===

func (c *Client) RegisterCrab(ctx context.Context, req controlplane.RegisterCrabRequest) (domain.Crab, error) {
	var crab domain.Crab
	err := c.do(ctx, http.MethodPost, "/v1/crabs/register", req, &crab)
	return crab, err
}

func (c *Client) Crabs(ctx context.Context) ([]domain.Crab, error) {
	var resp api.ListCrabsResponse
	if err := c.get(ctx, "/v1/crabs", &resp); err != nil {
		return nil, err
	}
	return resp.Crabs, nil
}

// === Missions ===

func (c *Client) CreateMission(ctx context.Context, req controlplane.CreateMissionRequest) (domain.Mission, error) {
	var mission domain.Mission
	err := c.do(ctx, http.MethodPost, "/v1/missions", req, &mission)
	return mission, err
}

func (c *Client) Missions(ctx context.Context) ([]domain.Mission, error) {
	var resp api.ListMissionsResponse
	if err := c.get(ctx, "/v1/missions", &resp); err != nil {
		return nil, err
	}
	return resp.Missions, nil
}

func (c *Client) Mission(ctx context.Context, missionID string) (controlplane.MissionDetail, error) {
	var detail controlplane.MissionDetail
	err := c.get(ctx, "/v1/missions/"+url.PathEscape(missionID), &detail)
	return detail, err
}

// === Tasks ===

func (c *Client) CreateTask(ctx context.Context, req controlplane.CreateTaskRequest) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, http.MethodPost, "/v1/tasks", req, &task)
	return task, err
}

func (c *Client) Tasks(ctx context.Context) ([]domain.Task, error) {
	var resp api.ListTasksResponse
	if err := c.get(ctx, "/v1/tasks", &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// === Runs ===

func (c *Client) StartRun(ctx context.Context, req controlplane.StartRunRequest) (domain.Run, error) {
	var run domain.Run
	err := c.do(ctx, http.MethodPost, "/v1/runs/start", req, &run)
	return run, err
}

func (c *Client) UpdateRun(ctx context.Context, req controlplane.UpdateRunRequest) (domain.Run, error) {
	var run domain.Run
	err := c.do(ctx, http.MethodPost, "/v1/runs/update", req, &run)
	return run, err
}

func (c *Client) CompleteRun(ctx context.Context, req controlplane.CompleteRunRequest) (domain.Run, error) {
	var run domain.Run
	err := c.do(ctx, http.MethodPost, "/v1/runs/complete", req, &run)
	return run, err
}

func (c *Client) Runs(ctx context.Context) ([]domain.Run, error) {
	var resp api.ListRunsResponse
	if err := c.get(ctx, "/v1/runs", &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// === Workflows and status ===

func (c *Client) Workflows(ctx context.Context) ([]string, error) {
	var resp api.ListWorkflowsResponse
	if err := c.get(ctx, "/v1/workflows", &resp); err != nil {
		return nil, err
	}
	return resp.Workflows, nil
}

func (c *Client) Status(ctx context.Context) (domain.StatusSnapshot, error) {
	var snapshot domain.StatusSnapshot
	err := c.get(ctx, "/v1/status", &snapshot)
	return snapshot, err
}

// === Plumbing ===

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}

	var body api.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else if msg := strings.TrimSpace(string(raw)); msg != "" {
		apiErr.Message = msg
	}
	return apiErr
}
