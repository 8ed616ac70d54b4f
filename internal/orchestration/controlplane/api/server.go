package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/controlplane"
	"github.com/crabitat/crabitat/internal/orchestration/events"
	"github.com/crabitat/crabitat/internal/orchestration/session"
	"github.com/crabitat/crabitat/internal/orchestration/tracing"
)

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	addr     string
	port     int // actual port after binding, useful with ":0"
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g. ":8800" or "localhost:0").
	Addr string
	// Service is the control plane to expose.
	Service *controlplane.Service
	// Sessions tracks live worker websocket connections.
	Sessions *session.Registry
	// Events is the feed streamed to console websockets.
	Events *events.Bus
	// Tracer wraps every request in a span when set.
	Tracer trace.Tracer
	// ReadTimeout bounds reading a whole request. Websocket sessions
	// are exempt once the connection is hijacked.
	ReadTimeout time.Duration
	// WriteTimeout bounds response writes. Zero keeps long-lived
	// sessions open.
	WriteTimeout time.Duration
}

// NewServer creates an API server. With a port of 0 the OS assigns one;
// use Port() after NewServer to discover it.
func NewServer(cfg ServerConfig) (*Server, error) {
	handler := NewHandler(HandlerConfig{
		Service:  cfg.Service,
		Sessions: cfg.Sessions,
		Events:   cfg.Events,
	})

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	// Create the listener before the server so the actual port is
	// known up front (important for ":0").
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Server{
		handler:  handler,
		addr:     cfg.Addr,
		port:     port,
		listener: listener,
		server: &http.Server{
			Handler:           tracing.HTTPMiddleware(cfg.Tracer)(handler.Routes()),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}, nil
}

// Start serves requests. It blocks until the server is stopped or fails.
func (s *Server) Start() error {
	log.Info(log.CatHTTP, "Control plane API listening", "addr", s.listener.Addr().String(), "port", s.port)
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts down the server, draining in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatHTTP, "Stopping API server")
	return s.server.Shutdown(ctx)
}

// Port returns the actual port the server is listening on.
func (s *Server) Port() int {
	return s.port
}
