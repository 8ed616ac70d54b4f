package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/controlplane"
	"github.com/crabitat/crabitat/internal/protocol"
)

// upgrader is shared by the crab and console sockets. The control plane
// trusts its network edge, so cross-origin upgrades are allowed.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleCrabSocket runs one worker session: dispatched envelopes flow
// out through the session's outbound channel, heartbeats and run
// reports flow in as envelope frames.
func (h *Handler) handleCrabSocket(w http.ResponseWriter, r *http.Request) {
	crabID := r.PathValue("crab_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(log.CatWS, "Crab websocket upgrade failed", "crab_id", crabID, "error", err)
		return
	}

	sess := h.sessions.Attach(crabID)
	log.Info(log.CatWS, "Crab connected", "crab_id", crabID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for env := range sess.Outbound() {
			if err := conn.WriteJSON(env); err != nil {
				log.Warn(log.CatWS, "Crab write failed", "crab_id", crabID, "error", err)
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.handleCrabFrame(r.Context(), crabID, data)
	}

	h.sessions.Detach(sess)
	_ = conn.Close()
	<-writerDone

	// A reconnect may already own a newer session; only a true
	// disconnect marks the crab offline.
	if !h.sessions.Connected(crabID) {
		if err := h.service.CrabDisconnected(context.Background(), crabID); err != nil {
			log.ErrorErr(log.CatWS, "Failed to mark crab offline", err, "crab_id", crabID)
		}
	}
	log.Info(log.CatWS, "Crab disconnected", "crab_id", crabID)
}

// handleCrabFrame applies one inbound frame. A frame that cannot be
// parsed or applied is logged and dropped; it never tears down the
// session.
func (h *Handler) handleCrabFrame(ctx context.Context, crabID string, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn(log.CatWS, "Ignoring unparseable frame", "crab_id", crabID, "error", err)
		return
	}

	switch env.Kind.Type {
	case protocol.KindHeartbeat:
		if err := h.service.TouchCrab(ctx, crabID); err != nil {
			log.ErrorErr(log.CatWS, "Heartbeat touch failed", err, "crab_id", crabID)
		}

	case protocol.KindTaskProgress:
		payload, err := protocol.DecodePayload[protocol.TaskProgress](env.Kind)
		if err != nil {
			log.Warn(log.CatWS, "Ignoring malformed task_progress", "crab_id", crabID, "error", err)
			return
		}
		// Progress notes are informational; they also prove the crab
		// is alive.
		log.Info(log.CatWS, "Task progress", "crab_id", crabID, "task_id", payload.TaskID, "message", payload.Message)
		if err := h.service.TouchCrab(ctx, crabID); err != nil {
			log.ErrorErr(log.CatWS, "Heartbeat touch failed", err, "crab_id", crabID)
		}

	case protocol.KindRunUpdate:
		payload, err := protocol.DecodePayload[protocol.RunUpdate](env.Kind)
		if err != nil {
			log.Warn(log.CatWS, "Ignoring malformed run_update", "crab_id", crabID, "error", err)
			return
		}
		req := controlplane.UpdateRunRequest{
			RunID:           payload.RunID,
			ProgressMessage: payload.ProgressMessage,
			TokenUsage:      payload.TokenUsage,
			Timing:          payload.Timing,
		}
		if payload.Status != nil {
			status := string(*payload.Status)
			req.Status = &status
		}
		if _, err := h.service.UpdateRun(ctx, req); err != nil {
			log.Warn(log.CatWS, "Run update over websocket failed", "crab_id", crabID, "run_id", payload.RunID, "error", err)
		}

	case protocol.KindRunComplete:
		payload, err := protocol.DecodePayload[protocol.RunComplete](env.Kind)
		if err != nil {
			log.Warn(log.CatWS, "Ignoring malformed run_complete", "crab_id", crabID, "error", err)
			return
		}
		req := controlplane.CompleteRunRequest{
			RunID:      payload.RunID,
			Status:     string(payload.Status),
			Summary:    payload.Summary,
			TokenUsage: payload.TokenUsage,
			Timing:     payload.Timing,
		}
		if _, err := h.service.CompleteRun(ctx, req); err != nil {
			log.Warn(log.CatWS, "Run completion over websocket failed", "crab_id", crabID, "run_id", payload.RunID, "error", err)
		}

	default:
		log.Debug(log.CatWS, "Ignoring frame of unknown kind", "crab_id", crabID, "kind", env.Kind.Type)
	}
}
