package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
)

// frameBuffer bounds how far the console reader can run ahead of the consumer.
const frameBuffer = 32

// Frame is one decoded console event. Snapshot frames carry the full state
// bundle; entity frames set exactly one of the entity pointers.
type Frame struct {
	Type     events.Type
	Snapshot *domain.StatusSnapshot
	Colony   *domain.Colony
	Crab     *domain.Crab
	Mission  *domain.Mission
	Task     *domain.Task
	Run      *domain.Run
}

// Console is a live subscription to the control plane's console socket.
// The server sends a snapshot frame first, then every state change as it
// happens. Frames closes when the connection drops; Err reports why.
type Console struct {
	conn   *websocket.Conn
	frames chan Frame
	done   chan struct{}

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// DialConsole opens a console subscription against the client's base URL.
func (c *Client) DialConsole(ctx context.Context) (*Console, error) {
	wsURL, err := c.websocketURL("/v1/ws/console")
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing console socket %s: %w", wsURL, err)
	}

	console := &Console{
		conn:   conn,
		frames: make(chan Frame, frameBuffer),
		done:   make(chan struct{}),
	}
	go console.readLoop()
	return console, nil
}

// websocketURL swaps the base URL scheme for its websocket counterpart.
func (c *Client) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", c.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// Frames returns the decoded event stream.
func (c *Console) Frames() <-chan Frame {
	return c.frames
}

// Err reports why the stream ended. It is meaningful once Frames is closed.
func (c *Console) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears the subscription down.
func (c *Console) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *Console) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}

		frame, err := decodeFrame(data)
		if err != nil {
			log.Warn(log.CatWS, "Dropping undecodable console frame", "error", err)
			continue
		}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

func (c *Console) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// decodeFrame unpacks the server's flattened event encoding: the entity
// fields sit at the top level next to "type".
func decodeFrame(data []byte) (Frame, error) {
	var wire struct {
		Type    events.Type     `json:"type"`
		Colony  *domain.Colony  `json:"colony"`
		Crab    *domain.Crab    `json:"crab"`
		Mission *domain.Mission `json:"mission"`
		Task    *domain.Task    `json:"task"`
		Run     *domain.Run     `json:"run"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Frame{}, fmt.Errorf("decoding console frame: %w", err)
	}

	frame := Frame{
		Type:    wire.Type,
		Colony:  wire.Colony,
		Crab:    wire.Crab,
		Mission: wire.Mission,
		Task:    wire.Task,
		Run:     wire.Run,
	}
	if wire.Type == events.TypeSnapshot {
		var snapshot domain.StatusSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return Frame{}, fmt.Errorf("decoding snapshot frame: %w", err)
		}
		frame.Snapshot = &snapshot
	}
	return frame, nil
}
