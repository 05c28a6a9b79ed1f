// Package api serves the read-only HTTP/JSON surface over the Incident
// Store and observability backend: health, distinct services, and
// incident lookup.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server wraps an http.Server and its lifecycle helpers.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	timeout    time.Duration
}

// NewServer constructs a Server bound to addr, serving handler.
func NewServer(addr string, handler http.Handler, gracefulTimeout time.Duration) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Server{
		httpServer: &http.Server{Handler: handler},
		listener:   lis,
		timeout:    gracefulTimeout,
	}, nil
}

// Start serves incoming HTTP requests until Shutdown is invoked. It returns
// http.ErrServerClosed on a clean shutdown, which callers should not treat
// as a failure.
func (s *Server) Start() error {
	return s.httpServer.Serve(s.listener)
}

// Shutdown attempts a graceful shutdown bounded by the configured timeout,
// and forces the server closed if that graceful shutdown fails or times out.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.httpServer.Close()
	}
}

// Address returns the bound listener address (useful for tests).
func (s *Server) Address() string {
	return s.listener.Addr().String()
}
