package tests

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/requester"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAuthManager struct {
	applyAuthFunc func(*http.Request) error
}

func (m *mockAuthManager) ApplyAuth(req *http.Request) error {
	return m.applyAuthFunc(req)
}

func TestHTTPRequestBuilder_BuildRequest(t *testing.T) {
	bearerAuth := &mockAuthManager{
		applyAuthFunc: func(req *http.Request) error {
			req.Header.Set("Authorization", "Bearer service-token")
			return nil
		},
	}

	tests := []struct {
		name         string
		config       *config.EndpointConfig
		authManager  requester.AuthManager
		request      *requester.Request
		wantErr      bool
		checkRequest func(t *testing.T, req *http.Request)
	}{
		{
			name: "GET with query",
			config: &config.EndpointConfig{
				BaseURL: "http://api.example.com/",
			},
			authManager: bearerAuth,
			request: &requester.Request{
				Path:  "/auth/v1/admin/users",
				Query: url.Values{"filter": {"a@x.com"}},
			},
			checkRequest: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "http://api.example.com/auth/v1/admin/users?filter=a%40x.com", req.URL.String())
				assert.Equal(t, http.MethodGet, req.Method)
				assert.Equal(t, "Bearer service-token", req.Header.Get("Authorization"))
				assert.Nil(t, req.Body)
			},
		},
		{
			name: "POST JSON body",
			config: &config.EndpointConfig{
				BaseURL: "http://api.example.com",
				Headers: map[string]string{"X-Client-Info": "diary-auth"},
			},
			authManager: bearerAuth,
			request: &requester.Request{
				Method: http.MethodPost,
				Path:   "auth/v1/signup",
				JSON:   map[string]string{"email": "a@x.com"},
			},
			checkRequest: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "http://api.example.com/auth/v1/signup", req.URL.String())
				assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
				assert.Equal(t, "diary-auth", req.Header.Get("X-Client-Info"))
				body, err := io.ReadAll(req.Body)
				require.NoError(t, err)
				assert.JSONEq(t, `{"email":"a@x.com"}`, string(body))
			},
		},
		{
			name:        "POST form body wins over JSON",
			config:      &config.EndpointConfig{BaseURL: "http://api.example.com"},
			authManager: bearerAuth,
			request: &requester.Request{
				Method: http.MethodPost,
				Path:   "/token",
				Form:   url.Values{"grant_type": {"authorization_code"}},
				JSON:   map[string]string{"ignored": "yes"},
			},
			checkRequest: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
				body, err := io.ReadAll(req.Body)
				require.NoError(t, err)
				assert.Equal(t, "grant_type=authorization_code", string(body))
			},
		},
		{
			name:        "per-request bearer overrides auth manager",
			config:      &config.EndpointConfig{BaseURL: "http://api.example.com"},
			authManager: bearerAuth,
			request: &requester.Request{
				Method:      http.MethodPost,
				Path:        "/auth/v1/logout",
				BearerToken: "user-token",
			},
			checkRequest: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "Bearer user-token", req.Header.Get("Authorization"))
			},
		},
		{
			name:   "auth failure",
			config: &config.EndpointConfig{BaseURL: "http://api.example.com"},
			authManager: &mockAuthManager{
				applyAuthFunc: func(req *http.Request) error {
					return errors.New("no credentials")
				},
			},
			request: &requester.Request{Path: "/x"},
			wantErr: true,
		},
		{
			name:        "nil request",
			config:      &config.EndpointConfig{BaseURL: "http://api.example.com"},
			authManager: bearerAuth,
			request:     nil,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := requester.NewHTTPRequestBuilder(tt.config, tt.authManager)
			req, err := builder.BuildRequest(context.Background(), tt.request)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.checkRequest(t, req)
		})
	}
}
