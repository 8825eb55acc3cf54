package testutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
)

// Server is a test HTTP server pinned to the IPv4 loopback interface, so
// tests behave the same in environments without IPv6 localhost.
type Server struct {
	URL      string
	listener net.Listener
	server   *http.Server
}

// NewServer starts the server with the given handler and returns it. Tests
// are skipped when no tcp4 loopback is available.
func NewServer(t *testing.T, handler http.Handler) *Server {
	t.Helper()
	if handler == nil {
		handler = http.NewServeMux()
	}
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: tcp4 loopback unavailable (%v)", err)
	}
	s := &Server{
		URL:      "http://" + l.Addr().String(),
		listener: l,
		server:   &http.Server{Handler: handler},
	}
	go func() {
		if serveErr := s.server.Serve(l); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			t.Logf("test server serve error: %v", serveErr)
		}
	}()
	t.Cleanup(s.Close)
	return s
}

// Close shuts down the underlying server.
func (s *Server) Close() {
	_ = s.server.Shutdown(context.Background())
}
