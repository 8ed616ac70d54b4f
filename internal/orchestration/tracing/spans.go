package tracing

// Span attribute keys. These are the semantic conventions shared by the
// request middleware, the control plane operations, and the poller.
const (
	AttrHTTPMethod = "http.method"
	AttrHTTPPath   = "http.path"
	AttrHTTPStatus = "http.status_code"

	AttrColonyID  = "colony.id"
	AttrCrabID    = "crab.id"
	AttrMissionID = "mission.id"
	AttrTaskID    = "task.id"
	AttrRunID     = "run.id"
	AttrStepID    = "step.id"
	AttrRole      = "crab.role"
	AttrWorkflow  = "workflow.name"

	AttrErrorMessage = "error.message"
)

// Span name prefixes.
const (
	// SpanPrefixHTTP prefixes request-surface spans, e.g. "http.POST /v1/runs/start".
	SpanPrefixHTTP = "http."
	// SpanPrefixOp prefixes control plane operation spans, e.g. "op.complete_run".
	SpanPrefixOp = "op."
	// SpanPrefixPoller prefixes merge-wait poller spans.
	SpanPrefixPoller = "poller."
)
