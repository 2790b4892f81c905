package constants

const (
	// TokenType for Bearer authentication
	TokenType = "Bearer"

	// AuthHeaderName is the name of the Authorization header
	AuthHeaderName = "Authorization"

	// AuthHeaderPrefix is the prefix for the Authorization header value
	AuthHeaderPrefix = "Bearer "
)

// OAuth routes served by the link backend.
const (
	ProtectedResourcePath   = "/.well-known/oauth-protected-resource"
	AuthorizationServerPath = "/.well-known/oauth-authorization-server"
	AuthorizePath           = "/oauth/authorize"
	TokenPath               = "/oauth/token"
	CallbackPath            = "/oauth/callback"
	UserInfoPath            = "/oauth/userinfo"
)

// Scopes requested from the identity provider when none are configured. The
// session user is keyed by the subject, so email is optional.
var DefaultScopes = []string{"openid", "profile", "email"}

// Discovery metadata
var (
	SupportedResponseTypes = []string{"code"}
	SupportedResponseModes = []string{"query"}
	SupportedGrantTypes    = []string{"authorization_code", "refresh_token"}
	SupportedAuthMethods   = []string{"none"}
	SupportedPKCEMethods   = []string{"S256"}
)
