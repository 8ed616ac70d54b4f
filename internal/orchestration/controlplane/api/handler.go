// Package api exposes the control plane over HTTP: a JSON REST surface
// for colonies, crabs, missions, tasks, and runs, plus websocket
// endpoints for worker crabs and observer consoles.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/controlplane"
	"github.com/crabitat/crabitat/internal/orchestration/events"
	"github.com/crabitat/crabitat/internal/orchestration/session"
)

// Handler serves the control plane API.
type Handler struct {
	service  *controlplane.Service
	sessions *session.Registry
	events   *events.Bus
}

// HandlerConfig carries the handler's dependencies.
type HandlerConfig struct {
	// Service is the control plane to expose.
	Service *controlplane.Service
	// Sessions tracks live worker websocket connections.
	Sessions *session.Registry
	// Events is the feed streamed to console websockets.
	Events *events.Bus
}

// NewHandler creates an API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		service:  cfg.Service,
		sessions: cfg.Sessions,
		events:   cfg.Events,
	}
}

// Routes returns the HTTP routing table.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.handleHealthz)

	mux.HandleFunc("POST /v1/colonies", h.handleCreateColony)
	mux.HandleFunc("GET /v1/colonies", h.handleListColonies)
	mux.HandleFunc("PATCH /v1/colonies/{id}", h.handleUpdateColony)
	mux.HandleFunc("GET /v1/colonies/{id}/issues", h.handleColonyIssues)
	mux.HandleFunc("GET /v1/colonies/{id}/queue", h.handleListQueue)
	mux.HandleFunc("POST /v1/colonies/{id}/queue", h.handleQueueIssue)
	mux.HandleFunc("DELETE /v1/colonies/{id}/queue/{mission_id}", h.handleDequeueMission)

	mux.HandleFunc("POST /v1/crabs/register", h.handleRegisterCrab)
	mux.HandleFunc("GET /v1/crabs", h.handleListCrabs)

	mux.HandleFunc("POST /v1/missions", h.handleCreateMission)
	mux.HandleFunc("GET /v1/missions", h.handleListMissions)
	mux.HandleFunc("GET /v1/missions/{id}", h.handleGetMission)

	mux.HandleFunc("POST /v1/tasks", h.handleCreateTask)
	mux.HandleFunc("GET /v1/tasks", h.handleListTasks)

	mux.HandleFunc("POST /v1/runs/start", h.handleStartRun)
	mux.HandleFunc("POST /v1/runs/update", h.handleUpdateRun)
	mux.HandleFunc("POST /v1/runs/complete", h.handleCompleteRun)
	mux.HandleFunc("GET /v1/runs", h.handleListRuns)

	mux.HandleFunc("GET /v1/workflows", h.handleListWorkflows)
	mux.HandleFunc("GET /v1/status", h.handleStatus)

	mux.HandleFunc("GET /v1/ws/crab/{crab_id}", h.handleCrabSocket)
	mux.HandleFunc("GET /v1/ws/console", h.handleConsoleSocket)

	return mux
}

// === Response types ===

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// HealthResponse is the GET /healthz body.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// ListColoniesResponse wraps GET /v1/colonies.
type ListColoniesResponse struct {
	Colonies []domain.Colony `json:"colonies"`
	Total    int             `json:"total"`
}

// ColonyIssuesResponse wraps GET /v1/colonies/{id}/issues.
type ColonyIssuesResponse struct {
	Issues []controlplane.ColonyIssue `json:"issues"`
	Total  int                        `json:"total"`
}

// QueueResponse wraps GET /v1/colonies/{id}/queue.
type QueueResponse struct {
	Queue []domain.Mission `json:"queue"`
	Total int              `json:"total"`
}

// ListCrabsResponse wraps GET /v1/crabs.
type ListCrabsResponse struct {
	Crabs []domain.Crab `json:"crabs"`
	Total int           `json:"total"`
}

// ListMissionsResponse wraps GET /v1/missions.
type ListMissionsResponse struct {
	Missions []domain.Mission `json:"missions"`
	Total    int              `json:"total"`
}

// ListTasksResponse wraps GET /v1/tasks.
type ListTasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
	Total int           `json:"total"`
}

// ListRunsResponse wraps GET /v1/runs.
type ListRunsResponse struct {
	Runs  []domain.Run `json:"runs"`
	Total int          `json:"total"`
}

// ListWorkflowsResponse wraps GET /v1/workflows.
type ListWorkflowsResponse struct {
	Workflows []string `json:"workflows"`
	Total     int      `json:"total"`
}

// === Health ===

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

// === Colonies ===

func (h *Handler) handleCreateColony(w http.ResponseWriter, r *http.Request) {
	var req controlplane.CreateColonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	colony, err := h.service.CreateColony(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, colony)
}

func (h *Handler) handleListColonies(w http.ResponseWriter, r *http.Request) {
	colonies, err := h.service.ListColonies(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ListColoniesResponse{Colonies: colonies, Total: len(colonies)})
}

func (h *Handler) handleUpdateColony(w http.ResponseWriter, r *http.Request) {
	var req controlplane.UpdateColonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	colony, err := h.service.UpdateColony(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, colony)
}

func (h *Handler) handleColonyIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := h.service.ColonyIssues(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ColonyIssuesResponse{Issues: issues, Total: len(issues)})
}

// === Queue ===

func (h *Handler) handleListQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := h.service.ListQueue(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, QueueResponse{Queue: queue, Total: len(queue)})
}

func (h *Handler) handleQueueIssue(w http.ResponseWriter, r *http.Request) {
	var req controlplane.QueueIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	mission, err := h.service.QueueIssue(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, mission)
}

func (h *Handler) handleDequeueMission(w http.ResponseWriter, r *http.Request) {
	err := h.service.DequeueMission(r.Context(), r.PathValue("id"), r.PathValue("mission_id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Crabs ===

func (h *Handler) handleRegisterCrab(w http.ResponseWriter, r *http.Request) {
	var req controlplane.RegisterCrabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	crab, err := h.service.RegisterCrab(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, crab)
}

func (h *Handler) handleListCrabs(w http.ResponseWriter, r *http.Request) {
	crabs, err := h.service.ListCrabs(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ListCrabsResponse{Crabs: crabs, Total: len(crabs)})
}

// === Missions ===

func (h *Handler) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req controlplane.CreateMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	mission, err := h.service.CreateMission(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, mission)
}

func (h *Handler) handleListMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := h.service.ListMissions(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ListMissionsResponse{Missions: missions, Total: len(missions)})
}

func (h *Handler) handleGetMission(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetMission(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// === Tasks ===

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req controlplane.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListTasks(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ListTasksResponse{Tasks: tasks, Total: len(tasks)})
}

// === Runs ===

func (h *Handler) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req controlplane.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	run, err := h.service.StartRun(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, run)
}

func (h *Handler) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	var req controlplane.UpdateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	run, err := h.service.UpdateRun(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleCompleteRun(w http.ResponseWriter, r *http.Request) {
	var req controlplane.CompleteRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	run, err := h.service.CompleteRun(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.ListRuns(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ListRunsResponse{Runs: runs, Total: len(runs)})
}

// === Workflows and status ===

func (h *Handler) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	names := h.service.WorkflowNames()
	h.writeJSON(w, http.StatusOK, ListWorkflowsResponse{Workflows: names, Total: len(names)})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Snapshot(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// === Helpers ===

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatHTTP, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{OK: false, Error: message})
}

// writeServiceError maps a control plane error onto the HTTP status for
// its code.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch controlplane.CodeOf(err) {
	case controlplane.CodeBadRequest:
		status = http.StatusBadRequest
	case controlplane.CodeNotFound:
		status = http.StatusNotFound
	}
	h.writeError(w, status, err.Error())
}
