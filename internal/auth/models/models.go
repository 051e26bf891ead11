package models

import "time"

// Provider identifies how a backend user authenticates
type Provider string

const (
	ProviderPassword Provider = "password"
	ProviderGoogle   Provider = "google"
)

// AuthorizationRequest is the body the mobile client posts to the exchange handler
type AuthorizationRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
	State       string `json:"state"`
}

// TokenSet holds the tokens returned by the identity provider
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// Profile represents the identity provider's view of the user
type Profile struct {
	ProviderID  string
	Email       string
	DisplayName string
	AvatarURL   string
}

// User is a record owned by the backend auth service
type User struct {
	ID          string   `json:"id" yaml:"id"`
	Email       string   `json:"email" yaml:"email"`
	DisplayName string   `json:"full_name" yaml:"full_name"`
	AvatarURL   string   `json:"avatar_url" yaml:"avatar_url"`
	Provider    Provider `json:"provider,omitempty" yaml:"provider,omitempty"`
}

// Session token types, they tell a client how to install the credentials
const (
	TokenTypeBearer    = "bearer"
	TokenTypeMagicLink = "magiclink"
	TokenTypeProvider  = "provider"
)

// Session is a set of backend credentials for one user
type Session struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty" yaml:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"-" yaml:"expires_at,omitempty"`
	User         *User     `json:"-" yaml:"user,omitempty"`
}

// Expired reports whether the access token has passed its expiry, sessions without one never expire
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ExchangeResponse is the exchange handler's success payload
type ExchangeResponse struct {
	Success bool     `json:"success"`
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

// ErrorResponse is the body of every failed exchange
type ErrorResponse struct {
	Error string `json:"error"`
}
