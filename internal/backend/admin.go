package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/logger"
	"github.com/brizzai/diary-auth/internal/requester"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lookupPageSize = 50

// AdminClient uses the service-role key. It never runs on a user's device.
type AdminClient struct {
	req *requester.HTTPRequester
}

// NewAdminClient creates an admin client for the configured backend
func NewAdminClient(cfg *config.Config) *AdminClient {
	return NewAdminClientWithRequester(requester.NewHTTPRequester(cfg.Backend.AdminEndpoint(), nil))
}

// NewAdminClientWithRequester is used when the requester needs a custom transport
func NewAdminClientWithRequester(req *requester.HTTPRequester) *AdminClient {
	return &AdminClient{req: req}
}

// CreateUser creates a user, returning ErrUserExists when the email is taken
func (a *AdminClient) CreateUser(ctx context.Context, attrs UserAttributes) (*models.User, error) {
	resp, err := a.req.Do(ctx, &requester.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/admin/users",
		JSON:   attrs,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if !resp.IsSuccess() {
		apiErr := parseAPIError(resp)
		if apiErr.IsUserExists() {
			return nil, fmt.Errorf("create user: %w", ErrUserExists)
		}
		return nil, fmt.Errorf("create user: %w", apiErr)
	}

	var u apiUser
	if err := resp.Decode(&u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u.toModel(), nil
}

// GetUserByEmail looks a user up by exact (case-insensitive) email
func (a *AdminClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	resp, err := a.req.Do(ctx, &requester.Request{
		Path: "/auth/v1/admin/users",
		Query: url.Values{
			"filter":   {email},
			"per_page": {fmt.Sprint(lookupPageSize)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("get user by email: %w", parseAPIError(resp))
	}

	var page struct {
		Users []apiUser `json:"users"`
	}
	if err := resp.Decode(&page); err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	// filter is a substring match, keep only the exact address
	for i := range page.Users {
		if strings.EqualFold(page.Users[i].Email, email) {
			return page.Users[i].toModel(), nil
		}
	}
	return nil, fmt.Errorf("get user by email: %w", ErrUserNotFound)
}

// GenerateLink issues a one-time sign-in link for email
func (a *AdminClient) GenerateLink(ctx context.Context, linkType, email string) (*Link, error) {
	resp, err := a.req.Do(ctx, &requester.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/admin/generate_link",
		JSON: map[string]string{
			"type":  linkType,
			"email": email,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate link: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("generate link: %w", parseAPIError(resp))
	}

	type linkProperties struct {
		ActionLink  string `json:"action_link"`
		HashedToken string `json:"hashed_token"`
	}
	var body struct {
		linkProperties
		Properties *linkProperties `json:"properties"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("generate link: failed to decode response: %w", err)
	}
	props := body.linkProperties
	if body.Properties != nil {
		props = *body.Properties
	}
	if props.HashedToken == "" {
		return nil, fmt.Errorf("generate link: response has no hashed_token")
	}
	return &Link{ActionLink: props.ActionLink, HashedToken: props.HashedToken}, nil
}

// SignInWithPassword runs the password grant on behalf of a user
func (a *AdminClient) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	resp, err := passwordGrant(ctx, a.req, email, password)
	if err != nil {
		return nil, err
	}
	if resp.Session == nil {
		return nil, fmt.Errorf("password sign-in: no session issued")
	}
	return resp.Session, nil
}

func passwordGrant(ctx context.Context, req *requester.HTTPRequester, email, password string) (*AuthResponse, error) {
	resp, err := req.Do(ctx, &requester.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/token",
		Query:  url.Values{"grant_type": {"password"}},
		JSON: map[string]string{
			"email":    email,
			"password": password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("password sign-in: %w", err)
	}
	if !resp.IsSuccess() {
		apiErr := parseAPIError(resp)
		logger.Debug("Password sign-in rejected", zap.Int("status", apiErr.Status), zap.String("code", apiErr.Code))
		return nil, fmt.Errorf("password sign-in: %w", apiErr)
	}
	return decodeAuthResponse(resp, time.Now())
}

// Module provides the admin client
var Module = fx.Module("backend",
	fx.Provide(NewAdminClient),
)
