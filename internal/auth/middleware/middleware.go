package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/brizzai/plaid-link/internal/auth/constants"
	"github.com/brizzai/plaid-link/internal/auth/models"
	"github.com/brizzai/plaid-link/internal/auth/providers"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/utils"
	"go.uber.org/zap"
)

type authContextKey string

// AuthContextKey is used to store the session user in the request context
const AuthContextKey authContextKey = "auth"

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, AuthContextKey, user)
}

// UserFromContext returns the session user, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(AuthContextKey).(*models.User)
	return user, ok && user != nil && user.ID != ""
}

// Authenticate validates the bearer token with the identity provider and
// stores the user in the request context.
func Authenticate(provider providers.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "unauthorized", "Authentication required")
				return
			}

			user, err := provider.ValidateAccessToken(r.Context(), token)
			if err != nil {
				logger.Debug("Rejected access token", zap.String("path", r.URL.Path), zap.Error(err))
				writeUnauthorized(w, "invalid_token", "The access token is invalid or expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// StaticUser attaches a fixed user to every request. It is used when OAuth
// is disabled and the server runs for a single local user.
func StaticUser(userID string) func(http.Handler) http.Handler {
	user := &models.User{ID: userID}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// CORSWithOrigins allows cross-origin calls from origins; "*" allows any
// origin. With an empty list only same-origin requests and requests without
// an Origin header are served. Requests from any other origin get 403.
func CORSWithOrigins(origins []string) func(http.Handler) http.Handler {
	anyOrigin := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case anyOrigin:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin == "":
			case sameOrigin(r, origin) || slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			default:
				utils.WriteError(w, "origin_not_allowed", "origin "+origin+" is not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Expose-Headers", "WWW-Authenticate")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// sameOrigin reports whether origin names the host the request was sent to.
func sameOrigin(r *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// extractToken extracts the Bearer token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get(constants.AuthHeaderName)
	if strings.HasPrefix(authHeader, constants.AuthHeaderPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, constants.AuthHeaderPrefix))
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="plaid-link", error="%s", error_description="%s"`, code, message))
	utils.WriteError(w, code, message, http.StatusUnauthorized)
}
