package api

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
)

// handleConsoleSocket streams the event feed to an observer. The client
// gets a full snapshot on connect and again whenever it falls behind
// the feed, so a console can always rebuild its view from what it has
// received.
func (h *Handler) handleConsoleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(log.CatWS, "Console websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before the snapshot so nothing published in between
	// is missed.
	sub := h.events.Subscribe(ctx)

	if err := h.writeSnapshot(ctx, conn); err != nil {
		log.Warn(log.CatWS, "Console snapshot failed", "error", err)
		return
	}
	log.Info(log.CatWS, "Console connected")

	// The reader drains inbound frames so websocket pings get their
	// pongs; any read error ends the session.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			log.Info(log.CatWS, "Console disconnected")
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			// A sequence gap means the subscription dropped events
			// while this console was slow. A fresh snapshot already
			// reflects everything that was lost.
			if lastSeq != 0 && ev.Seq > lastSeq+1 {
				log.Warn(log.CatWS, "Console fell behind, resending snapshot", "dropped", ev.Seq-lastSeq-1)
				if err := h.writeSnapshot(ctx, conn); err != nil {
					return
				}
			}
			lastSeq = ev.Seq
			if err := conn.WriteJSON(ev.Payload); err != nil {
				return
			}
		}
	}
}

// writeSnapshot sends the current full state as a snapshot event frame.
func (h *Handler) writeSnapshot(ctx context.Context, conn *websocket.Conn) error {
	snapshot, err := h.service.Snapshot(ctx)
	if err != nil {
		return err
	}
	return conn.WriteJSON(events.Snapshot(snapshot))
}
