package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/requester"
)

// Exchanger forwards an authorization code to the exchange handler
type Exchanger interface {
	Exchange(ctx context.Context, req models.AuthorizationRequest) (*models.ExchangeResponse, error)
}

// ExchangeError is a rejection from the exchange handler
type ExchangeError struct {
	Status  int
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange rejected with %d: %s", e.Status, e.Message)
}

// HTTPExchanger calls the exchange handler over HTTP
type HTTPExchanger struct {
	req *requester.HTTPRequester
}

func NewHTTPExchanger(cfg config.ClientConfig) *HTTPExchanger {
	return NewHTTPExchangerWithRequester(requester.NewHTTPRequester(cfg.ExchangeEndpoint(), nil))
}

func NewHTTPExchangerWithRequester(req *requester.HTTPRequester) *HTTPExchanger {
	return &HTTPExchanger{req: req}
}

func (e *HTTPExchanger) Exchange(ctx context.Context, authReq models.AuthorizationRequest) (*models.ExchangeResponse, error) {
	resp, err := e.req.Do(ctx, &requester.Request{
		Method: http.MethodPost,
		JSON:   authReq,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if !resp.IsSuccess() {
		exErr := &ExchangeError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body models.ErrorResponse
		if resp.Decode(&body) == nil && body.Error != "" {
			exErr.Message = body.Error
		}
		return nil, exErr
	}

	var out models.ExchangeResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if !out.Success || out.Session == nil || out.Session.AccessToken == "" {
		return nil, fmt.Errorf("exchange code: response carries no session")
	}
	return &out, nil
}
