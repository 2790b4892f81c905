// Package server runs the link backend over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/brizzai/plaid-link/internal/apispec"
	"github.com/brizzai/plaid-link/internal/auth"
	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/linkservice"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/server/handler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// shutdownTimeout is the maximum time to wait for server shutdown
	shutdownTimeout = 5 * time.Second
)

// Server is the link backend: the link token and exchange API, item
// management, the Plaid webhook and the web link page.
type Server struct {
	config  *config.Config
	handler http.Handler
}

// NewServer wires the HTTP handler for cfg.
func NewServer(cfg *config.Config, svc *linkservice.Service, authn *auth.Authenticator, spec *apispec.Spec) *Server {
	h := handler.NewHandler(&cfg.Server, svc, authn, spec)
	return &Server{
		config:  cfg,
		handler: h.CreateHTTPHandler(),
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("name", s.config.Server.Name),
			zap.String("address", ln.Addr().String()),
			zap.String("plaid_env", s.config.Plaid.Environment),
		)

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server", zap.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}

// Module provides the HTTP server dependencies
var Module = fx.Module("server",
	fx.Provide(
		apispec.Load,
		NewServer,
	),
)
