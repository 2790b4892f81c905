package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brizzai/plaid-link/internal/auth/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenProvider struct {
	users map[string]*models.User
}

func (p *tokenProvider) GetAuthURL(string, string, string, string) string { return "" }
func (p *tokenProvider) ExchangeCode(context.Context, string, string, string) (*oauth2.Token, error) {
	return nil, errors.New("not implemented")
}
func (p *tokenProvider) ValidateToken(context.Context, *oauth2.Token) (*models.User, error) {
	return nil, errors.New("not implemented")
}
func (p *tokenProvider) RefreshToken(context.Context, string) (*oauth2.Token, error) {
	return nil, errors.New("not implemented")
}
func (p *tokenProvider) ValidateAccessToken(_ context.Context, token string) (*models.User, error) {
	if u, ok := p.users[token]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(user.ID))
	})
}

func TestAuthenticate(t *testing.T) {
	provider := &tokenProvider{users: map[string]*models.User{"good": {ID: "user-1"}}}
	h := Authenticate(provider)(echoUser())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/items", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestStaticUser(t *testing.T) {
	rec := httptest.NewRecorder()
	StaticUser("local-user")(echoUser()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "local-user", rec.Body.String())
}

func TestUserFromContext(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)
	_, ok = UserFromContext(WithUser(context.Background(), &models.User{}))
	assert.False(t, ok)
	user, ok := UserFromContext(WithUser(context.Background(), &models.User{ID: "a"}))
	require.True(t, ok)
	assert.Equal(t, "a", user.ID)
}

func TestCORSWithOrigins(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name        string
		origins     []string
		method      string
		origin      string
		wantStatus  int
		wantAllowed string
	}{
		{name: "wildcard", origins: []string{"*"}, method: http.MethodGet, origin: "https://app.example", wantStatus: http.StatusOK, wantAllowed: "*"},
		{name: "listed origin", origins: []string{"https://app.example"}, method: http.MethodGet, origin: "https://app.example", wantStatus: http.StatusOK, wantAllowed: "https://app.example"},
		{name: "unlisted origin", origins: []string{"https://app.example"}, method: http.MethodGet, origin: "https://evil.example", wantStatus: http.StatusForbidden},
		{name: "no origin", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "same origin", method: http.MethodDelete, origin: "http://example.com", wantStatus: http.StatusOK, wantAllowed: "http://example.com"},
		{name: "foreign origin by default", method: http.MethodGet, origin: "https://evil.example", wantStatus: http.StatusForbidden},
		{name: "foreign preflight by default", method: http.MethodOptions, origin: "https://evil.example", wantStatus: http.StatusForbidden},
		{name: "malformed origin", method: http.MethodGet, origin: "null", wantStatus: http.StatusForbidden},
		{name: "preflight", origins: []string{"*"}, method: http.MethodOptions, wantStatus: http.StatusNoContent, wantAllowed: "*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			// httptest requests are addressed to example.com.
			req := httptest.NewRequest(tt.method, "/items", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			CORSWithOrigins(tt.origins)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllowed, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
