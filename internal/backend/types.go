// Package backend talks to the GoTrue-compatible auth service that owns users and sessions.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/requester"
)

var (
	// ErrUserExists is returned by CreateUser when the email is already registered
	ErrUserExists = errors.New("user already registered")
	// ErrUserNotFound is returned when a lookup by email finds nothing
	ErrUserNotFound = errors.New("user not found")
	// ErrNoSession is returned by operations that need a signed-in user
	ErrNoSession = errors.New("no active session")
)

// APIError is a non-2xx answer from the auth service
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth service returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth service returned %d: %s", e.Status, e.Message)
}

// IsUserExists reports whether the error means the email is taken
func (e *APIError) IsUserExists() bool {
	switch e.Code {
	case "email_exists", "user_already_exists":
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "already registered") || strings.Contains(msg, "already been registered")
}

func parseAPIError(resp *requester.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}
	for _, key := range []string{"msg", "message", "error_description", "error"} {
		if s, ok := body[key].(string); ok && s != "" {
			apiErr.Message = s
			break
		}
	}
	if s, ok := body["error_code"].(string); ok {
		apiErr.Code = s
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// UserAttributes are the fields accepted when creating a user
type UserAttributes struct {
	Email        string                 `json:"email"`
	Password     string                 `json:"password,omitempty"`
	EmailConfirm bool                   `json:"email_confirm"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// AuthResponse mirrors the sign-up/sign-in answer, Session is nil when confirmation is pending
type AuthResponse struct {
	User    *models.User
	Session *models.Session
}

// Link is the result of generate_link
type Link struct {
	ActionLink  string
	HashedToken string
}

// LinkType values accepted by generate_link
const (
	LinkTypeMagicLink = "magiclink"
)

type apiUser struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	AppMetadata  struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
}

func (u *apiUser) toModel() *models.User {
	user := &models.User{
		ID:       u.ID,
		Email:    u.Email,
		Provider: models.Provider(u.AppMetadata.Provider),
	}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		user.DisplayName = name
	}
	if avatar, ok := u.UserMetadata["avatar_url"].(string); ok {
		user.AvatarURL = avatar
	}
	if provider, ok := u.UserMetadata["provider"].(string); ok && provider != "" {
		user.Provider = models.Provider(provider)
	}
	if user.Provider == "" || user.Provider == "email" {
		user.Provider = models.ProviderPassword
	}
	return user
}

type apiSession struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         *apiUser `json:"user"`
}

func (s *apiSession) toModel(now time.Time) *models.Session {
	session := &models.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    models.TokenTypeBearer,
	}
	switch {
	case s.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		session.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	if s.User != nil {
		session.User = s.User.toModel()
	}
	return session
}

// decodeAuthResponse accepts both a session payload and a bare user payload
func decodeAuthResponse(resp *requester.Response, now time.Time) (*AuthResponse, error) {
	var s apiSession
	if err := resp.Decode(&s); err != nil {
		return nil, err
	}
	if s.AccessToken != "" {
		session := s.toModel(now)
		return &AuthResponse{User: session.User, Session: session}, nil
	}

	var u apiUser
	if err := resp.Decode(&u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("auth service response has neither session nor user")
	}
	return &AuthResponse{User: u.toModel()}, nil
}
