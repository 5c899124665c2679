package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/scribehub/scribe/internal/logger"
)

// Server is the HTTP front of the knowledge hub: upload, documents, search,
// admin and the chat stream.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates the API HTTP server over the wired router.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests. Defaults are applied here so the server also works when
// constructed directly in tests.
func NewServer(config ServerConfig, deps Deps) *Server {
	config.applyDefaults()

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:     NewRouter(deps),
		ReadTimeout: config.ReadTimeout,
		// Write timeout stays unset: the chat stream and large downloads
		// are open-ended.
		IdleTimeout: config.IdleTimeout,
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Start starts the server and blocks until the context is cancelled or an
// error occurs. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", s.server.Addr)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.KeyError, err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address. Empty binds all interfaces.
	Host string

	// Port is the HTTP port. Default: 8080.
	Port int

	// ReadTimeout bounds reading one request including its body.
	// A 5 MiB chunk upload on a slow link needs headroom. Default: 120s.
	ReadTimeout time.Duration

	// IdleTimeout bounds keep-alive waits. Default: 60s.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration
}

// applyDefaults fills in zero values with working defaults.
func (c *ServerConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 120 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}
