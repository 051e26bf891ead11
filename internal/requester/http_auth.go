package requester

import (
	"fmt"
	"net/http"

	"github.com/brizzai/diary-auth/internal/config"
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
func NewHTTPAuthManager(endpoint *config.EndpointConfig) *HTTPAuthManager {
	return &HTTPAuthManager{
		authType:   endpoint.AuthType,
		authConfig: endpoint.AuthConfig,
	}
}

// ApplyAuth adds authentication to the request
func (a *HTTPAuthManager) ApplyAuth(req *http.Request) error {
	switch a.authType {
	case config.AuthTypeNone, "":
		return nil
	case config.AuthTypeBasic:
		username := a.authConfig["username"]
		password := a.authConfig["password"]
		req.SetBasicAuth(username, password)
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
	case config.AuthTypeServiceKey:
		key := a.authConfig["key"]
		req.Header.Set("apikey", key)
		req.Header.Set("Authorization", "Bearer "+key)
	default:
		return fmt.Errorf("unsupported auth type: %s", a.authType)
	}
	return nil
}
