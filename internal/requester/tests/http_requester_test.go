package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/requester"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockAuthManager implements the AuthManager interface for testing
type MockAuthManager struct{}

func (m *MockAuthManager) ApplyAuth(req *http.Request) error {
	return nil
}

func TestHTTPRequester(t *testing.T) {
	tests := []struct {
		name           string
		request        *requester.Request
		endpoint       *config.EndpointConfig
		serverResponse func(w http.ResponseWriter, r *http.Request)
		checkResponse  func(t *testing.T, response *requester.Response, err error)
	}{
		{
			name:     "Simple GET Request",
			request:  &requester.Request{Path: "/auth/v1/user", BearerToken: "user-token"},
			endpoint: &config.EndpointConfig{AuthType: config.AuthTypeNone},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/auth/v1/user", r.URL.Path)
				assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
				w.WriteHeader(http.StatusOK)
				_ = json.NewEncoder(w).Encode(map[string]string{"id": "user-1"})
			},
			checkResponse: func(t *testing.T, response *requester.Response, err error) {
				require.NoError(t, err)
				assert.True(t, response.IsSuccess())

				var body map[string]string
				require.NoError(t, response.Decode(&body))
				assert.Equal(t, "user-1", body["id"])
			},
		},
		{
			name: "POST Request with service key",
			request: &requester.Request{
				Method: http.MethodPost,
				Path:   "/auth/v1/admin/users",
				JSON:   map[string]interface{}{"email": "a@x.com", "email_confirm": true},
			},
			endpoint: &config.EndpointConfig{
				AuthType:   config.AuthTypeServiceKey,
				AuthConfig: map[string]string{"key": "service-role"},
			},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "service-role", r.Header.Get("apikey"))
				assert.Equal(t, "Bearer service-role", r.Header.Get("Authorization"))
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "a@x.com", body["email"])
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"id":"new"}`))
			},
			checkResponse: func(t *testing.T, response *requester.Response, err error) {
				require.NoError(t, err)
				assert.Equal(t, http.StatusCreated, response.StatusCode)
			},
		},
		{
			name:     "Error status is not a transport error",
			request:  &requester.Request{Path: "/missing"},
			endpoint: &config.EndpointConfig{},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"msg":"nope"}`))
			},
			checkResponse: func(t *testing.T, response *requester.Response, err error) {
				require.NoError(t, err)
				assert.False(t, response.IsSuccess())
				assert.Equal(t, `{"msg":"nope"}`, string(response.Body))
			},
		},
		{
			name:     "Empty body cannot be decoded",
			request:  &requester.Request{Path: "/empty"},
			endpoint: &config.EndpointConfig{},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			},
			checkResponse: func(t *testing.T, response *requester.Response, err error) {
				require.NoError(t, err)
				var v map[string]string
				assert.Error(t, response.Decode(&v))
			},
		},
		{
			name:     "Timeout",
			request:  &requester.Request{Path: "/slow"},
			endpoint: &config.EndpointConfig{Timeout: 50 * time.Millisecond},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			},
			checkResponse: func(t *testing.T, response *requester.Response, err error) {
				assert.Error(t, err)
				assert.Nil(t, response)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			tt.endpoint.BaseURL = server.URL
			r := requester.NewHTTPRequester(tt.endpoint, nil)

			response, err := r.Do(context.Background(), tt.request)
			tt.checkResponse(t, response, err)
		})
	}
}

func TestHTTPRequesterCustomAuthManager(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := requester.NewHTTPRequester(&config.EndpointConfig{
		BaseURL:    server.URL,
		AuthType:   config.AuthTypeBearer,
		AuthConfig: map[string]string{"token": "ignored"},
	}, &MockAuthManager{})

	resp, err := r.Do(context.Background(), &requester.Request{Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
