// Package plaid is a small JSON client for the parts of the Plaid API used
// to link items and fetch their transactions.
package plaid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/metrics"
	"github.com/brizzai/plaid-link/internal/requester"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var environmentURLs = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

// BaseURL returns the API host for env. Unknown environments resolve to
// production.
func BaseURL(env string) string {
	if u, ok := environmentURLs[strings.ToLower(env)]; ok {
		return u
	}
	return environmentURLs["production"]
}

// ErrNotConfigured is returned when the client is built without credentials.
var ErrNotConfigured = errors.New("plaid client is not configured")

// Client calls the Plaid API.
type Client struct {
	requester *requester.HTTPRequester
}

// NewClient builds a client from cfg.
func NewClient(cfg *config.PlaidConfig) (*Client, error) {
	if cfg == nil || cfg.ClientID == "" || cfg.Secret == "" {
		return nil, ErrNotConfigured
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL(cfg.Environment)
	}
	endpoint := &config.EndpointConfig{
		BaseURL:  baseURL,
		AuthType: config.AuthTypePlaid,
		AuthConfig: map[string]string{
			"client_id": cfg.ClientID,
			"secret":    cfg.Secret,
		},
		Headers: map[string]string{"Plaid-Version": "2020-09-14"},
		Timeout: cfg.Timeout,
	}
	logger.Debug("Plaid client configured",
		zap.String("environment", cfg.Environment),
		zap.String("base_url", baseURL),
	)
	return NewClientWithRequester(requester.NewHTTPRequester(requester.HTTPRequesterParams{
		ServiceConfig: endpoint,
	})), nil
}

// NewClientWithRequester wraps an existing requester.
func NewClientWithRequester(r *requester.HTTPRequester) *Client {
	return &Client{requester: r}
}

func (c *Client) call(ctx context.Context, path string, body, out interface{}) error {
	if c == nil || c.requester == nil {
		return ErrNotConfigured
	}
	start := time.Now()
	err := c.requester.PostJSON(ctx, path, body, out)
	metrics.ObservePlaid(path, start)
	var statusErr *requester.StatusError
	if errors.As(err, &statusErr) {
		return parseError(statusErr.StatusCode, statusErr.Body)
	}
	if err != nil {
		return fmt.Errorf("plaid %s: %w", path, err)
	}
	return nil
}

// LinkTokenCreate calls /link/token/create.
func (c *Client) LinkTokenCreate(ctx context.Context, req *LinkTokenCreateRequest) (*LinkTokenCreateResponse, error) {
	var resp LinkTokenCreateResponse
	if err := c.call(ctx, "/link/token/create", req, &resp); err != nil {
		return nil, err
	}
	if resp.LinkToken == "" {
		return nil, fmt.Errorf("plaid /link/token/create: response has no link_token")
	}
	return &resp, nil
}

// ItemPublicTokenExchange swaps a public token for a durable access token.
func (c *Client) ItemPublicTokenExchange(ctx context.Context, publicToken string) (*ItemPublicTokenExchangeResponse, error) {
	var resp ItemPublicTokenExchangeResponse
	body := map[string]string{"public_token": publicToken}
	if err := c.call(ctx, "/item/public_token/exchange", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.ItemID == "" {
		return nil, fmt.Errorf("plaid /item/public_token/exchange: incomplete response")
	}
	return &resp, nil
}

// ItemRemove invalidates the access token of an item.
func (c *Client) ItemRemove(ctx context.Context, accessToken string) error {
	body := map[string]string{"access_token": accessToken}
	return c.call(ctx, "/item/remove", body, nil)
}

// TransactionsGet fetches one page of transactions.
func (c *Client) TransactionsGet(ctx context.Context, req *TransactionsGetRequest) (*TransactionsGetResponse, error) {
	var resp TransactionsGetResponse
	if err := c.call(ctx, "/transactions/get", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LiabilitiesGet fetches the liabilities of an item.
func (c *Client) LiabilitiesGet(ctx context.Context, accessToken string) (*LiabilitiesGetResponse, error) {
	var resp LiabilitiesGetResponse
	body := map[string]string{"access_token": accessToken}
	if err := c.call(ctx, "/liabilities/get", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TransactionsRecurringGet fetches the recurring inflow and outflow streams
// of an item.
func (c *Client) TransactionsRecurringGet(ctx context.Context, accessToken string) (*TransactionsRecurringGetResponse, error) {
	var resp TransactionsRecurringGetResponse
	body := map[string]string{"access_token": accessToken}
	if err := c.call(ctx, "/transactions/recurring/get", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SandboxPublicTokenCreate creates a public token without the Link UI. Only
// available in the sandbox environment.
func (c *Client) SandboxPublicTokenCreate(ctx context.Context, institutionID string, products []string) (string, error) {
	var resp SandboxPublicTokenCreateResponse
	req := &SandboxPublicTokenCreateRequest{
		InstitutionID:   institutionID,
		InitialProducts: products,
	}
	if err := c.call(ctx, "/sandbox/public_token/create", req, &resp); err != nil {
		return "", err
	}
	return resp.PublicToken, nil
}

func newModuleClient(cfg *config.Config) (*Client, error) {
	if err := cfg.RequirePlaid(); err != nil {
		return nil, err
	}
	return NewClient(&cfg.Plaid)
}

// Module provides the Plaid client
var Module = fx.Module("plaid",
	fx.Provide(newModuleClient),
)
