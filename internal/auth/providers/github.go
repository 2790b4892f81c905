package providers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/brizzai/plaid-link/internal/auth/models"
	"github.com/brizzai/plaid-link/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubUserURL = "https://api.github.com/user"

type GitHubProvider struct {
	codeFlow
	userURL string
}

func NewGitHubProvider(cfg *config.OAuthConfig) *GitHubProvider {
	return &GitHubProvider{
		codeFlow: codeFlow{oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       scopesOr(cfg.Scopes, []string{"read:user", "user:email"}),
		}},
		userURL: githubUserURL,
	}
}

func (p *GitHubProvider) ValidateToken(ctx context.Context, token *oauth2.Token) (*models.User, error) {
	return p.user(ctx, p.oauth2Config.Client(ctx, token))
}

func (p *GitHubProvider) ValidateAccessToken(ctx context.Context, token string) (*models.User, error) {
	return p.user(ctx, bearerClient(ctx, token))
}

func (p *GitHubProvider) user(ctx context.Context, client *http.Client) (*models.User, error) {
	var gh struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, p.userURL, &gh); err != nil {
		return nil, err
	}
	return &models.User{
		ID:      "github:" + strconv.FormatInt(gh.ID, 10),
		Email:   gh.Email,
		Name:    gh.Name,
		Picture: gh.AvatarURL,
		Metadata: map[string]interface{}{
			"login": gh.Login,
		},
	}, nil
}
