package providers

import (
	"context"
	"errors"

	"github.com/brizzai/diary-auth/internal/auth/models"
)

var (
	// ErrTokenExchange is returned when the provider rejects an authorization code
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrProfile is returned when the provider profile cannot be fetched or is unusable
	ErrProfile = errors.New("profile fetch failed")
)

// Provider defines the interface that identity providers must implement
type Provider interface {
	// GetAuthURL returns the consent URL for the given state and redirect
	GetAuthURL(state, redirectURI string) string

	// ExchangeCode exchanges an authorization code for tokens
	ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error)

	// FetchProfile returns the user's profile for the access token in tokens
	FetchProfile(ctx context.Context, tokens *models.TokenSet) (*models.Profile, error)
}
