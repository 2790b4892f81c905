// Package auth resolves the session user: through an OAuth identity
// provider when enabled, or a fixed local user otherwise.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/brizzai/plaid-link/internal/auth/constants"
	"github.com/brizzai/plaid-link/internal/auth/handlers"
	"github.com/brizzai/plaid-link/internal/auth/middleware"
	"github.com/brizzai/plaid-link/internal/auth/providers"
	"github.com/brizzai/plaid-link/internal/config"
	"go.uber.org/fx"
)

// Service represents the OAuth service
type Service struct {
	config       *config.OAuthConfig
	authProvider providers.Provider
	handler      *handlers.Handler
}

// NewService creates a new OAuth service
func NewService(cfg *config.OAuthConfig, provider providers.Provider) (*Service, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("oauth base_url is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("oauth provider is required")
	}

	return &Service{
		config:       cfg,
		authProvider: provider,
		handler:      handlers.NewHandler(cfg.BaseURL, provider),
	}, nil
}

// RegisterRoutes registers all OAuth-related routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+constants.ProtectedResourcePath, s.handler.HandleProtectedResourceDiscovery)
	mux.HandleFunc("GET "+constants.AuthorizationServerPath, s.handler.HandleAuthorizationServerDiscovery)

	mux.HandleFunc("GET "+constants.AuthorizePath, s.handler.HandleAuthorize)
	mux.HandleFunc("POST "+constants.TokenPath, s.handler.HandleToken)
	mux.HandleFunc("GET "+constants.CallbackPath, s.handler.HandleAuthCallback)
	mux.Handle("GET "+constants.UserInfoPath, s.Authenticate()(http.HandlerFunc(s.handler.HandleUserInfo)))
}

// Authenticate returns the authentication middleware
func (s *Service) Authenticate() func(http.Handler) http.Handler {
	return middleware.Authenticate(s.authProvider)
}

// GetProvider returns the configured auth provider
func (s *Service) GetProvider() providers.Provider {
	return s.authProvider
}

// Authenticator decides who the session user of a request is.
type Authenticator struct {
	// Service is nil when OAuth is disabled.
	Service    *Service
	middleware func(http.Handler) http.Handler
}

// NewAuthenticator builds the OAuth service when enabled in cfg, and falls
// back to the configured default user otherwise.
func NewAuthenticator(ctx context.Context, cfg *config.Config) (*Authenticator, error) {
	if cfg.OAuth == nil || !cfg.OAuth.Enabled {
		return &Authenticator{middleware: middleware.StaticUser(cfg.Link.DefaultUserID)}, nil
	}
	provider, err := providers.New(ctx, cfg.OAuth)
	if err != nil {
		return nil, err
	}
	svc, err := NewService(cfg.OAuth, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}
	return &Authenticator{Service: svc, middleware: svc.Authenticate()}, nil
}

// Wrap applies the session user middleware to next.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return a.middleware(next)
}

// RegisterRoutes registers the OAuth routes when OAuth is enabled.
func (a *Authenticator) RegisterRoutes(mux *http.ServeMux) {
	if a.Service != nil {
		a.Service.RegisterRoutes(mux)
	}
}

func newModuleAuthenticator(cfg *config.Config) (*Authenticator, error) {
	return NewAuthenticator(context.Background(), cfg)
}

// Module provides the session authenticator
var Module = fx.Module("auth",
	fx.Provide(newModuleAuthenticator),
)
