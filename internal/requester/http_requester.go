package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/logger"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// HTTPRequester handles both request building and execution
type HTTPRequester struct {
	client  *http.Client
	builder *HTTPRequestBuilder
}

// NewHTTPRequester creates a new HTTPRequester for the endpoint
func NewHTTPRequester(endpoint *config.EndpointConfig, authMgr AuthManager) *HTTPRequester {
	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if authMgr == nil {
		authMgr = NewHTTPAuthManager(endpoint)
	}
	return &HTTPRequester{
		client: &http.Client{
			Timeout: timeout,
		},
		builder: NewHTTPRequestBuilder(endpoint, authMgr),
	}
}

// SetTimeout sets the timeout for the HTTP client
func (r *HTTPRequester) SetTimeout(timeout time.Duration) {
	r.client.Timeout = timeout
}

// SetHTTPClient replaces the underlying client, used by tests against httptest servers
func (r *HTTPRequester) SetHTTPClient(client *http.Client) {
	r.client = client
}

// Do builds and executes req. Non-2xx statuses are not errors, callers inspect the Response.
func (r *HTTPRequester) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := r.builder.BuildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Debug("request route",
		zap.String("method", httpReq.Method),
		zap.String("path", httpReq.URL.Path),
	)

	resp, err := r.execute(httpReq)
	if err != nil {
		logger.Error("failed to execute request", zap.String("path", httpReq.URL.Path), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// execute performs the actual HTTP request execution
func (r *HTTPRequester) execute(httpReq *http.Request) (resp *Response, err error) {
	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       bodyBytes,
		Headers:    httpResp.Header,
	}, nil
}
