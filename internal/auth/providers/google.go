package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/brizzai/diary-auth/internal/auth/constants"
	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/logger"
	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type GoogleProvider struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
	verifier     *oidc.IDTokenVerifier
	httpClient   *http.Client
}

// GoogleOption customizes a GoogleProvider
type GoogleOption func(*GoogleProvider)

// WithHTTPClient sets the client used for all provider calls
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		p.httpClient = c
	}
}

// WithVerifier sets the id_token verifier, bypassing discovery
func WithVerifier(v *oidc.IDTokenVerifier) GoogleOption {
	return func(p *GoogleProvider) {
		p.verifier = v
	}
}

func NewGoogleProvider(ctx context.Context, cfg *config.OAuthConfig, opts ...GoogleOption) (*GoogleProvider, error) {
	endpoint := google.Endpoint
	// client credentials travel in the form body, not basic auth
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = constants.DefaultScopes
	}

	p := &GoogleProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		userInfoURL: cfg.UserInfoURL,
	}
	if p.userInfoURL == "" {
		p.userInfoURL = constants.GoogleUserInfoURL
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.VerifyIDToken && p.verifier == nil {
		issuer := cfg.Issuer
		if issuer == "" {
			issuer = constants.GoogleIssuer
		}
		provider, err := oidc.NewProvider(p.clientContext(ctx), issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
		}
		p.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}

	return p, nil
}

func (p *GoogleProvider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *GoogleProvider) GetAuthURL(state, redirectURI string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	}
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}
	return p.oauth2Config.AuthCodeURL(state, opts...)
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error) {
	cfg := *p.oauth2Config // copy
	cfg.RedirectURL = redirectURI

	token, err := cfg.Exchange(p.clientContext(ctx), code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			// Provider body stays in the logs, never in the response
			logger.Error("Google token exchange failed",
				zap.Int("status", retrieveErr.Response.StatusCode),
				zap.String("error_code", retrieveErr.ErrorCode),
				zap.ByteString("body", retrieveErr.Body),
			)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	tokens := &models.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		tokens.IDToken = idToken
	}
	return tokens, nil
}

func (p *GoogleProvider) FetchProfile(ctx context.Context, tokens *models.TokenSet) (*models.Profile, error) {
	ctx = p.clientContext(ctx)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: tokens.AccessToken,
		TokenType:   constants.TokenType,
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrProfile, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("Failed to call userinfo endpoint", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to call userinfo endpoint: %v", ErrProfile, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Error("Google userinfo request failed",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, fmt.Errorf("%w: userinfo request failed with status %d", ErrProfile, resp.StatusCode)
	}

	var userInfo struct {
		ID      string `json:"id"`
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("%w: failed to decode userinfo response: %v", ErrProfile, err)
	}

	profile := &models.Profile{
		ProviderID:  userInfo.ID,
		Email:       userInfo.Email,
		DisplayName: userInfo.Name,
		AvatarURL:   userInfo.Picture,
	}
	if profile.ProviderID == "" {
		// the OIDC userinfo endpoint names it sub
		profile.ProviderID = userInfo.Sub
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: profile has no email", ErrProfile)
	}

	if p.verifier != nil && tokens.IDToken != "" {
		if err := p.verifyIDToken(ctx, tokens.IDToken, profile); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

func (p *GoogleProvider) verifyIDToken(ctx context.Context, rawIDToken string, profile *models.Profile) error {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("%w: failed to verify ID token: %v", ErrProfile, err)
	}
	if idToken.Subject != profile.ProviderID {
		logger.Warn("ID token subject does not match profile",
			zap.String("subject", idToken.Subject),
			zap.String("profile_id", profile.ProviderID),
		)
		return fmt.Errorf("%w: id token subject mismatch", ErrProfile)
	}
	return nil
}
