package requester

import (
	"fmt"
	"net/http"

	"github.com/brizzai/plaid-link/internal/config"
)

// AuthManager handles request authentication
type AuthManager interface {
	ApplyAuth(req *http.Request) error
}

// HTTPAuthManager implements the AuthManager interface
type HTTPAuthManager struct {
	authType   config.AuthType
	authConfig map[string]string
}

// NewHTTPAuthManager creates a new HTTPAuthManager
func NewHTTPAuthManager(serviceConfig *config.EndpointConfig) *HTTPAuthManager {
	return &HTTPAuthManager{
		authType:   serviceConfig.AuthType,
		authConfig: serviceConfig.AuthConfig,
	}
}

// ApplyAuth adds authentication to the request
func (a *HTTPAuthManager) ApplyAuth(req *http.Request) error {
	switch a.authType {
	case config.AuthTypeNone, "":
		return nil
	case config.AuthTypeBearer:
		token := a.authConfig["token"]
		req.Header.Set("Authorization", "Bearer "+token)
	case config.AuthTypeAPIKey:
		key := a.authConfig["key"]
		header := a.authConfig["header"]
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, key)
	case config.AuthTypePlaid:
		clientID := a.authConfig["client_id"]
		secret := a.authConfig["secret"]
		if clientID == "" || secret == "" {
			return fmt.Errorf("plaid auth requires client_id and secret")
		}
		req.Header.Set("PLAID-CLIENT-ID", clientID)
		req.Header.Set("PLAID-SECRET", secret)
	default:
		return fmt.Errorf("unsupported auth type: %s", a.authType)
	}
	return nil
}
