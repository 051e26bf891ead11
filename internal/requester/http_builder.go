package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brizzai/diary-auth/internal/config"
)

// HTTPRequestBuilder turns a Request into an authenticated *http.Request
type HTTPRequestBuilder struct {
	endpoint *config.EndpointConfig
	authMgr  AuthManager
}

// NewHTTPRequestBuilder creates a new HTTPRequestBuilder
func NewHTTPRequestBuilder(endpoint *config.EndpointConfig, authMgr AuthManager) *HTTPRequestBuilder {
	return &HTTPRequestBuilder{
		endpoint: endpoint,
		authMgr:  authMgr,
	}
}

// BuildRequest builds the HTTP request for req
func (b *HTTPRequestBuilder) BuildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u, err := b.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body, contentType, err := b.createRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// Endpoint headers first, request headers override
	for key, value := range b.endpoint.Headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	// Apply authentication
	if b.authMgr != nil {
		if err := b.authMgr.ApplyAuth(httpReq); err != nil {
			return nil, fmt.Errorf("failed to apply authentication: %w", err)
		}
	}
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}

	return httpReq, nil
}

func (b *HTTPRequestBuilder) buildURL(path string, query url.Values) (string, error) {
	raw := strings.TrimRight(b.endpoint.BaseURL, "/")
	if path != "" {
		raw += "/" + strings.TrimLeft(path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request url %q: %w", raw, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (b *HTTPRequestBuilder) createRequestBody(req *Request) (io.Reader, string, error) {
	if req.Form != nil {
		return strings.NewReader(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	}
	if req.JSON != nil {
		jsonData, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		return bytes.NewBuffer(jsonData), "application/json", nil
	}
	return nil, "", nil
}
