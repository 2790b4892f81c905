package link

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/requester"
)

// HTTPBackend talks to the link server over HTTP.
type HTTPBackend struct {
	createToken requester.RouteExecutor
	exchange    requester.RouteExecutor
}

// NewHTTPBackend builds a backend for the server described by cfg.
func NewHTTPBackend(cfg *config.EndpointConfig) (*HTTPBackend, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("link: backend base url is required")
	}
	r := requester.NewHTTPRequester(requester.HTTPRequesterParams{ServiceConfig: cfg})
	createToken, err := r.BuildRouteExecutor(&requester.RouteConfig{
		Path:        "/create_link_token",
		Method:      http.MethodPost,
		Description: "Issue a link token",
	})
	if err != nil {
		return nil, err
	}
	exchange, err := r.BuildRouteExecutor(&requester.RouteConfig{
		Path:        "/exchange_public_token",
		Method:      http.MethodPost,
		Description: "Exchange a public token",
	})
	if err != nil {
		return nil, err
	}
	return &HTTPBackend{createToken: createToken, exchange: exchange}, nil
}

// CreateLinkToken returns the link token issued by the server. A decodable
// response without a token yields an empty string.
func (b *HTTPBackend) CreateLinkToken(ctx context.Context, req TokenRequest) (string, error) {
	resp, err := b.createToken(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &requester.StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	var body struct {
		LinkToken  string `json:"link_token"`
		Expiration string `json:"expiration"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return body.LinkToken, nil
}

type exchangeRequest struct {
	PublicToken string       `json:"public_token"`
	Institution *Institution `json:"institution,omitempty"`
}

// ExchangePublicToken hands publicToken to the server.
func (b *HTTPBackend) ExchangePublicToken(ctx context.Context, publicToken string, metadata SuccessMetadata) (*ExchangeResult, error) {
	resp, err := b.exchange(ctx, exchangeRequest{PublicToken: publicToken, Institution: metadata.Institution})
	if err != nil {
		return nil, err
	}
	var out ExchangeResult
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
