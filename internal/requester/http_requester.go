package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/logger"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a request when the endpoint config has none.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 10 << 20

// HTTPRequester handles both request building and execution
type HTTPRequester struct {
	client     *http.Client
	serviceCfg *config.EndpointConfig
	authMgr    AuthManager
}

type HTTPRequesterParams struct {
	ServiceConfig *config.EndpointConfig
	AuthManager   AuthManager
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

// NewHTTPRequester creates a new HTTPRequester
func NewHTTPRequester(params HTTPRequesterParams) *HTTPRequester {
	timeout := params.ServiceConfig.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := params.Client
	if client == nil {
		client = &http.Client{}
	}
	client.Timeout = timeout

	authMgr := params.AuthManager
	if authMgr == nil {
		authMgr = NewHTTPAuthManager(params.ServiceConfig)
	}

	return &HTTPRequester{
		client:     client,
		serviceCfg: params.ServiceConfig,
		authMgr:    authMgr,
	}
}

// SetTimeout sets the timeout for the HTTP client
func (r *HTTPRequester) SetTimeout(timeout time.Duration) {
	r.client.Timeout = timeout
}

// Timeout returns the per-request timeout
func (r *HTTPRequester) Timeout() time.Duration {
	return r.client.Timeout
}

// BuildRouteExecutor creates a function that can execute requests for a specific route
func (r *HTTPRequester) BuildRouteExecutor(route *RouteConfig) (RouteExecutor, error) {
	if route == nil {
		return nil, fmt.Errorf("route config is nil")
	}
	builder := NewHTTPRequestBuilder(r.serviceCfg, r.authMgr, route)

	return func(ctx context.Context, body interface{}) (*Response, error) {
		req, err := builder.BuildRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		logger.Debug("request route", zap.String("method", req.Method), zap.String("url", req.URL))

		start := time.Now()
		resp, err := r.execute(req)
		if err != nil {
			logger.Error("failed to execute request",
				zap.String("url", req.URL),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return nil, err
		}
		logger.Debug("route responded",
			zap.String("url", req.URL),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
		)
		return resp, nil
	}, nil
}

// PostJSON posts body to path and decodes a 2xx JSON response into out.
// Non-2xx responses are returned as *StatusError.
func (r *HTTPRequester) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	executor, err := r.BuildRouteExecutor(&RouteConfig{Path: path, Method: http.MethodPost})
	if err != nil {
		return err
	}
	resp, err := executor(ctx, body)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// execute performs the actual HTTP request execution
func (r *HTTPRequester) execute(req *Request) (resp *Response, err error) {
	httpResp, err := r.client.Do(req.HttpRequest)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       bodyBytes,
		Headers:    httpResp.Header,
	}, nil
}
