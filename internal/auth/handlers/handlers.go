package handlers

import (
	"net/http"
	"strings"

	"github.com/brizzai/plaid-link/internal/auth/constants"
	"github.com/brizzai/plaid-link/internal/auth/middleware"
	"github.com/brizzai/plaid-link/internal/auth/providers"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/utils"
	"go.uber.org/zap"
)

// Handler handles OAuth-related HTTP requests
type Handler struct {
	baseURL      string
	authProvider providers.Provider
}

// NewHandler creates a new Handler instance
func NewHandler(baseURL string, provider providers.Provider) *Handler {
	return &Handler{
		baseURL:      strings.TrimRight(baseURL, "/"),
		authProvider: provider,
	}
}

func (h *Handler) callbackURL() string {
	return h.baseURL + constants.CallbackPath
}

// HandleProtectedResourceDiscovery handles /.well-known/oauth-protected-resource
func (h *Handler) HandleProtectedResourceDiscovery(w http.ResponseWriter, r *http.Request) {
	discovery := map[string]interface{}{
		"resource":              h.baseURL,
		"authorization_servers": []string{h.baseURL},
		"scopes_supported":      constants.DefaultScopes,
		"token_types_supported": []string{constants.TokenType},
		"resource_metadata_uri": h.baseURL + constants.ProtectedResourcePath,
	}

	utils.WriteJSON(w, discovery)
}

// HandleAuthorizationServerDiscovery handles /.well-known/oauth-authorization-server
func (h *Handler) HandleAuthorizationServerDiscovery(w http.ResponseWriter, r *http.Request) {
	discovery := map[string]interface{}{
		"issuer":                                h.baseURL,
		"authorization_endpoint":                h.baseURL + constants.AuthorizePath,
		"token_endpoint":                        h.baseURL + constants.TokenPath,
		"userinfo_endpoint":                     h.baseURL + constants.UserInfoPath,
		"token_endpoint_auth_methods_supported": constants.SupportedAuthMethods,
		"scopes_supported":                      constants.DefaultScopes,
		"response_types_supported":              constants.SupportedResponseTypes,
		"response_modes_supported":              constants.SupportedResponseModes,
		"grant_types_supported":                 constants.SupportedGrantTypes,
		"code_challenge_methods_supported":      constants.SupportedPKCEMethods,
	}

	utils.WriteJSON(w, discovery)
}

// HandleToken exchanges an authorization code or refresh token for tokens
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.WriteError(w, "invalid_request", "Failed to parse form", http.StatusBadRequest)
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		code := r.FormValue("code")
		if code == "" {
			utils.WriteError(w, "invalid_request", "Code is required", http.StatusBadRequest)
			return
		}
		redirectURI := r.FormValue("redirect_uri")
		if redirectURI == "" {
			redirectURI = h.callbackURL()
		}
		token, err := h.authProvider.ExchangeCode(r.Context(), code, r.FormValue("code_verifier"), redirectURI)
		if err != nil {
			logger.Error("Failed to exchange code", zap.Error(err))
			utils.WriteError(w, "invalid_grant", "The authorization code could not be exchanged", http.StatusBadRequest)
			return
		}
		utils.WriteJSON(w, token)
	case "refresh_token":
		refresh := r.FormValue("refresh_token")
		if refresh == "" {
			utils.WriteError(w, "invalid_request", "refresh_token is required", http.StatusBadRequest)
			return
		}
		token, err := h.authProvider.RefreshToken(r.Context(), refresh)
		if err != nil {
			logger.Error("Failed to refresh token", zap.Error(err))
			utils.WriteError(w, "invalid_grant", "The refresh token is invalid", http.StatusBadRequest)
			return
		}
		utils.WriteJSON(w, token)
	default:
		utils.WriteError(w, "unsupported_grant_type", "Unsupported grant type", http.StatusBadRequest)
	}
}

// HandleAuthorize sends the user to the identity provider's consent screen
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		redirectURI = h.callbackURL()
	}

	authURL := h.authProvider.GetAuthURL(q.Get("state"), q.Get("code_challenge"), q.Get("code_challenge_method"), redirectURI)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleAuthCallback completes a browser login started at /oauth/authorize
// and returns the session tokens.
func (h *Handler) HandleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		utils.WriteError(w, errCode, q.Get("error_description"), http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		utils.WriteError(w, "invalid_request", "Code is required", http.StatusBadRequest)
		return
	}

	token, err := h.authProvider.ExchangeCode(r.Context(), code, "", h.callbackURL())
	if err != nil {
		logger.Error("Failed to exchange code", zap.Error(err))
		utils.WriteError(w, "invalid_grant", "The authorization code could not be exchanged", http.StatusBadRequest)
		return
	}
	user, err := h.authProvider.ValidateToken(r.Context(), token)
	if err != nil {
		logger.Error("Failed to validate token", zap.Error(err))
		utils.WriteError(w, "invalid_token", "The identity provider returned an invalid token", http.StatusBadGateway)
		return
	}
	logger.Info("User signed in", zap.String("user_id", user.ID))

	utils.WriteJSON(w, map[string]interface{}{
		"access_token":  token.AccessToken,
		"token_type":    constants.TokenType,
		"refresh_token": token.RefreshToken,
		"expiry":        token.Expiry,
		"state":         q.Get("state"),
		"user":          user,
	})
}

// HandleUserInfo returns the session user
func (h *Handler) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		utils.WriteError(w, "unauthorized", "Authentication required", http.StatusUnauthorized)
		return
	}
	utils.WriteJSON(w, user)
}
