package requester

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request describes a call against the configured endpoint
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// JSON is marshalled as the request body
	JSON interface{}
	// Form is sent form-encoded, it takes precedence over JSON
	Form    url.Values
	Headers map[string]string
	// BearerToken overrides whatever Authorization the AuthManager set
	BearerToken string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v interface{}) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body (status %d)", r.StatusCode)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
