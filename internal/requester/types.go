package requester

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// RouteExecutor is a function that executes a route with a JSON body
type RouteExecutor func(ctx context.Context, body interface{}) (*Response, error)

// RouteConfig holds the configuration for a specific route
type RouteConfig struct {
	Path        string            `json:"path"`
	Method      string            `json:"method"`
	Description string            `json:"description,omitempty"`
	Headers     map[string]string `json:"headers"`
}

// Request represents a fully built HTTP request
type Request struct {
	URL         string
	Method      string
	Headers     map[string]string
	ContentType string
	HttpRequest *http.Request // The actual HTTP request
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// OK reports whether the response has a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into out. Non-2xx responses are returned
// as a *StatusError instead.
func (r *Response) Decode(out interface{}) error {
	if !r.OK() {
		return &StatusError{StatusCode: r.StatusCode, Body: r.Body}
	}
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Message extracts a human readable message from a JSON error body, falling
// back to the raw body.
func (e *StatusError) Message() string {
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorMessage     string `json:"error_message"`
	}
	if err := json.Unmarshal(e.Body, &body); err == nil {
		switch {
		case body.ErrorDescription != "":
			return body.ErrorDescription
		case body.ErrorMessage != "":
			return body.ErrorMessage
		case body.Error != "":
			return body.Error
		}
	}
	if len(e.Body) > 256 {
		return string(e.Body[:256])
	}
	return string(e.Body)
}
