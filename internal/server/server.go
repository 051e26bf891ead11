// Package server runs the OAuth exchange handler over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/brizzai/diary-auth/internal/auth"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/logger"
	"github.com/brizzai/diary-auth/internal/server/handler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// defaultShutdownTimeout is used when the configuration leaves it unset
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Server represents the exchange server instance
type Server struct {
	config  *config.Config
	auth    *auth.Service
	handler *handler.Handler
}

// NewServer creates a new server for the given auth service
func NewServer(cfg *config.Config, authService *auth.Service) *Server {
	if cfg == nil {
		logger.Fatal("Config cannot be nil")
	}
	if authService == nil {
		logger.Fatal("Auth service cannot be nil")
	}

	return &Server{
		config:  cfg,
		auth:    authService,
		handler: handler.NewHandler(authService),
	}
}

// Handler returns the complete HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler.CreateHTTPHandler()
}

// Addr is the configured listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
}

// Start listens on the configured address until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	logger.Info("Starting server",
		zap.String("name", s.config.Server.Name),
		zap.String("version", s.config.Server.Version),
		zap.String("session_strategy", string(s.config.OAuth.SessionStrategy)),
		zap.String("rate_limit_store", string(s.config.RateLimit.Store)),
	)

	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Channel for server errors
	errChan := make(chan error, 1)

	go func() {
		logger.Info("Listening", zap.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		logger.Info("Shutting down server", zap.Duration("timeout", timeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}

// registerLifecycle runs the server for the lifetime of the fx app
func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, s *Server) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", s.Addr())
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
			}
			go func() {
				defer close(done)
				if err := s.Serve(ctx, ln); err != nil {
					logger.Error("Server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// Module provides the exchange server and ties it to the app lifecycle
var Module = fx.Module("server",
	fx.Provide(
		NewServer,
	),
	fx.Invoke(registerLifecycle),
)
