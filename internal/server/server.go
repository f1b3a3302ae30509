package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultAPIAddr is the default address for the API server.
	DefaultAPIAddr = ":8000"

	// DefaultReadHeaderTimeout bounds how long a client may take to send
	// request headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds response writing. It must outlast the
	// reply drafting timeout, the slowest operation the API performs.
	DefaultWriteTimeout = 60 * time.Second

	// DefaultIdleTimeout bounds how long keep-alive connections stay open.
	DefaultIdleTimeout = 120 * time.Second
)

// HTTPServer serves the API with bounded timeouts and graceful shutdown.
type HTTPServer struct {
	httpServer *http.Server
	addr       string
	logger     *slog.Logger
}

// NewHTTPServer creates an HTTP server for the given handler.
// If addr is empty, DefaultAPIAddr is used. If logger is nil,
// slog.Default() is used.
func NewHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *HTTPServer {
	if addr == "" {
		addr = DefaultAPIAddr
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPServer{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
		addr:   addr,
		logger: logger,
	}
}

// Start starts the server in a blocking manner.
func (s *HTTPServer) Start() error {
	s.logger.Info("starting api server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// StartWithReadySignal starts the server and closes ready once the
// listener is bound. Blocks until the server stops.
func (s *HTTPServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind api listener on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()

	s.logger.Info("starting api server", "addr", s.addr)
	close(ready)

	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down api server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server is bound to.
func (s *HTTPServer) Addr() string {
	return s.addr
}
