package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/backend"
	"github.com/brizzai/diary-auth/internal/config"
)

// Materializer turns a provisioned user into session credentials for the client
type Materializer interface {
	Name() config.SessionStrategy
	// Prepare adjusts the attributes of a user about to be created
	Prepare(attrs *backend.UserAttributes)
	Materialize(ctx context.Context, user *models.User, tokens *models.TokenSet) (*models.Session, error)
}

// LinkIssuer issues sign-in links for existing users
type LinkIssuer interface {
	GenerateLink(ctx context.Context, linkType, email string) (*backend.Link, error)
}

// PasswordSignIn signs a user in with a password grant
type PasswordSignIn interface {
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
}

// SessionIssuer is what the built-in strategies need from the backend
type SessionIssuer interface {
	LinkIssuer
	PasswordSignIn
}

// NewMaterializer returns the strategy selected in cfg
func NewMaterializer(cfg *config.Config, issuer SessionIssuer) (Materializer, error) {
	switch cfg.OAuth.SessionStrategy {
	case config.SessionStrategyMagicLink, "":
		return &MagicLinkMaterializer{links: issuer}, nil
	case config.SessionStrategyPassword:
		secret := cfg.OAuth.PasswordSecret
		if secret == "" {
			secret = cfg.Backend.AdminKey
		}
		return NewPasswordMaterializer(issuer, secret), nil
	case config.SessionStrategyPassthrough:
		return PassthroughMaterializer{}, nil
	default:
		return nil, fmt.Errorf("unknown session strategy %q", cfg.OAuth.SessionStrategy)
	}
}

// MagicLinkMaterializer hands out the hashed token of a fresh magic link.
// The client redeems it with the backend's verify endpoint.
type MagicLinkMaterializer struct {
	links LinkIssuer
}

func NewMagicLinkMaterializer(links LinkIssuer) *MagicLinkMaterializer {
	return &MagicLinkMaterializer{links: links}
}

func (m *MagicLinkMaterializer) Name() config.SessionStrategy {
	return config.SessionStrategyMagicLink
}

func (m *MagicLinkMaterializer) Prepare(*backend.UserAttributes) {}

func (m *MagicLinkMaterializer) Materialize(ctx context.Context, user *models.User, tokens *models.TokenSet) (*models.Session, error) {
	link, err := m.links.GenerateLink(ctx, backend.LinkTypeMagicLink, user.Email)
	if err != nil {
		return nil, err
	}
	if link.HashedToken == "" {
		return nil, fmt.Errorf("magic link for %s has no hashed token", user.Email)
	}
	return &models.Session{
		AccessToken:  link.HashedToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    models.TokenTypeMagicLink,
		User:         user,
	}, nil
}

// PasswordMaterializer gives each OAuth user a password derived from a server secret
// and signs in with it. Only users created through this strategy carry that password.
type PasswordMaterializer struct {
	signIn PasswordSignIn
	secret []byte
}

func NewPasswordMaterializer(signIn PasswordSignIn, secret string) *PasswordMaterializer {
	return &PasswordMaterializer{signIn: signIn, secret: []byte(secret)}
}

func (m *PasswordMaterializer) Name() config.SessionStrategy {
	return config.SessionStrategyPassword
}

func (m *PasswordMaterializer) Prepare(attrs *backend.UserAttributes) {
	attrs.Password = m.password(attrs.Email)
}

func (m *PasswordMaterializer) Materialize(ctx context.Context, user *models.User, _ *models.TokenSet) (*models.Session, error) {
	session, err := m.signIn.SignInWithPassword(ctx, user.Email, m.password(user.Email))
	if err != nil {
		return nil, err
	}
	session.TokenType = models.TokenTypeBearer
	if session.User == nil {
		session.User = user
	}
	return session, nil
}

func (m *PasswordMaterializer) password(email string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(strings.ToLower(email)))
	return hex.EncodeToString(mac.Sum(nil))
}

// PassthroughMaterializer returns the provider tokens unchanged
type PassthroughMaterializer struct{}

func (PassthroughMaterializer) Name() config.SessionStrategy {
	return config.SessionStrategyPassthrough
}

func (PassthroughMaterializer) Prepare(*backend.UserAttributes) {}

func (PassthroughMaterializer) Materialize(_ context.Context, user *models.User, tokens *models.TokenSet) (*models.Session, error) {
	return &models.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    models.TokenTypeProvider,
		User:         user,
	}, nil
}
