// Package server owns the HTTP listener lifecycle: signal-driven
// graceful shutdown with ordered teardown of background components.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc drains one component within the shutdown deadline.
type ShutdownFunc func(ctx context.Context) error

// Server wraps http.Server with signal handling and LIFO component
// teardown. Components registered via OnShutdown stop after the
// listener has drained, newest first, so the postback worker outlives
// in-flight requests that may still enqueue work.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	teardown []ShutdownFunc
}

// New creates a Server listening on the given port.
func New(handler http.Handler, port int, readTimeout, writeTimeout, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// OnShutdown registers a component to stop during graceful shutdown.
// Registered functions run in reverse registration order once the
// HTTP listener has stopped accepting connections.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown = append(s.teardown, func(ctx context.Context) error {
		s.logger.Info("component_stopping", "component", name)
		if err := fn(ctx); err != nil {
			s.logger.Error("component_stop_failed", "component", name, "error", err)
			return fmt.Errorf("stop %s: %w", name, err)
		}
		s.logger.Info("component_stopped", "component", name)
		return nil
	})
}

// Run serves until SIGINT or SIGTERM arrives, then drains.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("server_listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		s.logger.Info("shutdown_signal", "signal", sig.String())
		return s.drain()
	}
}

// drain stops the listener, then tears down registered components
// newest first, all under one shutdown deadline.
func (s *Server) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.httpServer.SetKeepAlivesEnabled(false)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		// Components still get their chance to drain.
		s.logger.Error("listener_shutdown_failed", "error", err)
	} else {
		s.logger.Info("listener_stopped")
	}

	s.mu.Lock()
	teardown := s.teardown
	s.mu.Unlock()

	var errs []error
	for i := len(teardown) - 1; i >= 0; i-- {
		if err := teardown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.logger.Error("shutdown_incomplete", "failed", len(errs))
		return errors.Join(errs...)
	}

	s.logger.Info("server_stopped")
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
