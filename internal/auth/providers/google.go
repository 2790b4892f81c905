package providers

import (
	"context"
	"fmt"

	"github.com/brizzai/plaid-link/internal/auth/models"
	"github.com/brizzai/plaid-link/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleIssuer      = "https://accounts.google.com"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

type GoogleProvider struct {
	codeFlow
	verifier    *oidc.IDTokenVerifier
	userInfoURL string
}

type googleClaims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (c googleClaims) user() *models.User {
	return &models.User{
		ID:      "google:" + c.Sub,
		Email:   c.Email,
		Name:    c.Name,
		Picture: c.Picture,
	}
}

func NewGoogleProvider(ctx context.Context, cfg *config.OAuthConfig) (*GoogleProvider, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &GoogleProvider{
		codeFlow: codeFlow{oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopesOr(cfg.Scopes, []string{oidc.ScopeOpenID, "profile", "email"}),
		}},
		verifier:    provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		userInfoURL: googleUserInfoURL,
	}, nil
}

func (p *GoogleProvider) ValidateToken(ctx context.Context, token *oauth2.Token) (*models.User, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return claims.user(), nil
}

func (p *GoogleProvider) ValidateAccessToken(ctx context.Context, token string) (*models.User, error) {
	var claims googleClaims
	if err := getJSON(ctx, bearerClient(ctx, token), p.userInfoURL, &claims); err != nil {
		return nil, err
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("userinfo response has no subject")
	}
	return claims.user(), nil
}
