package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/brizzai/plaid-link/internal/auth/models"
	"github.com/brizzai/plaid-link/internal/config"
	"golang.org/x/oauth2"
)

// ErrUnsupportedProvider indicates an unknown provider name in the config.
var ErrUnsupportedProvider = errors.New("unsupported OAuth provider")

// Provider defines the interface that all OAuth providers must implement
type Provider interface {
	// GetAuthURL returns the authorization URL for the provider
	GetAuthURL(state, codeChallenge, codeChallengeMethod, redirectURI string) string

	// ExchangeCode exchanges an authorization code for tokens
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*oauth2.Token, error)

	// ValidateToken validates an OAuth token and returns the user
	ValidateToken(ctx context.Context, token *oauth2.Token) (*models.User, error)

	// RefreshToken refreshes an OAuth token
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// ValidateAccessToken validates a raw access token and returns the user
	ValidateAccessToken(ctx context.Context, token string) (*models.User, error)
}

// New builds the provider named in cfg.
func New(ctx context.Context, cfg *config.OAuthConfig) (Provider, error) {
	switch cfg.Provider {
	case "github":
		return NewGitHubProvider(cfg), nil
	case "google":
		p, err := NewGoogleProvider(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize provider %s: %w", cfg.Provider, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}
