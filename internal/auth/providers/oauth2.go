package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/brizzai/plaid-link/internal/auth/constants"
	"github.com/brizzai/plaid-link/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// codeFlow implements the authorization code steps shared by all providers.
type codeFlow struct {
	oauth2Config *oauth2.Config
}

func (c *codeFlow) GetAuthURL(state, codeChallenge, codeChallengeMethod, redirectURI string) string {
	opts := []oauth2.AuthCodeOption{}
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}
	if codeChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", codeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", codeChallengeMethod),
		)
	}
	return c.oauth2Config.AuthCodeURL(state, opts...)
}

func (c *codeFlow) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*oauth2.Token, error) {
	cfg := *c.oauth2Config
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}

	opts := []oauth2.AuthCodeOption{}
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	return cfg.Exchange(ctx, code, opts...)
}

func (c *codeFlow) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return c.oauth2Config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	}).Token()
}

func bearerClient(ctx context.Context, token string) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   constants.TokenType,
	}))
}

// getJSON fetches url with client and decodes a 200 response into out.
func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user info request failed with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func scopesOr(scopes, fallback []string) []string {
	if len(scopes) > 0 {
		return scopes
	}
	return fallback
}
