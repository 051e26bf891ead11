package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/auth/providers"
	"github.com/brizzai/diary-auth/internal/backend"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/logger"
	"go.uber.org/zap"
)

// AuthClient is the part of the backend client the manager drives
type AuthClient interface {
	GetSession(ctx context.Context) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) (*backend.AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*backend.AuthResponse, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (*models.Session, error)
	InstallSession(session *models.Session)
	VerifyTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	SignOut(ctx context.Context) error
	AuthorizeURL(provider models.Provider, redirectTo string) string
	OnAuthStateChange(listener backend.AuthStateListener) func()
}

// Manager exposes the sign-in flows and keeps the Store in step with the backend client
type Manager struct {
	client    AuthClient
	store     *Store
	browser   Browser
	provider  providers.Provider
	exchanger Exchanger

	mode        config.OAuthMode
	state       string
	callbackURL string
	returnURL   string
	timeout     time.Duration

	mu          sync.Mutex
	unsubscribe func()
}

// Option customizes a Manager
type Option func(*Manager)

// WithStore shares an existing store
func WithStore(s *Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithProvider replaces the identity provider used to build authorization URLs
func WithProvider(p providers.Provider) Option {
	return func(m *Manager) {
		m.provider = p
	}
}

// WithExchanger replaces the exchange handler client
func WithExchanger(e Exchanger) Option {
	return func(m *Manager) {
		m.exchanger = e
	}
}

// NewManager creates a manager for cfg. browser may be nil when OAuth is not used.
func NewManager(cfg *config.Config, client AuthClient, browser Browser, opts ...Option) (*Manager, error) {
	m := &Manager{
		client:      client,
		browser:     browser,
		mode:        cfg.Client.Mode,
		state:       cfg.OAuth.State,
		callbackURL: cfg.Client.CallbackURL,
		returnURL:   cfg.Client.ReturnURL,
		timeout:     cfg.Client.OAuthTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = NewStore()
	}
	if m.mode == "" {
		m.mode = config.OAuthModeDirect
	}

	if m.mode == config.OAuthModeDirect {
		if m.provider == nil {
			oauthCfg := cfg.OAuth
			// the client never verifies id tokens, that is the exchange handler's job
			oauthCfg.VerifyIDToken = false
			p, err := providers.NewGoogleProvider(context.Background(), &oauthCfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create provider: %w", err)
			}
			m.provider = p
		}
		if m.exchanger == nil {
			m.exchanger = NewHTTPExchanger(cfg.Client)
		}
	}
	return m, nil
}

// Store returns the observable state
func (m *Manager) Store() *Store {
	return m.store
}

// Init subscribes to backend auth events and recovers the persisted session.
// Loading ends even when recovery fails.
func (m *Manager) Init(ctx context.Context) error {
	m.store.setLoading(true)

	m.mu.Lock()
	if m.unsubscribe == nil {
		m.unsubscribe = m.client.OnAuthStateChange(m.HandleAuthEvent)
	}
	m.mu.Unlock()

	session, err := m.client.GetSession(ctx)
	if err != nil {
		logger.Warn("Failed to recover session", zap.Error(err))
	} else if session != nil {
		m.store.setSession(session)
	}
	m.store.setLoading(false)
	return err
}

// HandleAuthEvent mirrors a backend auth change into the store
func (m *Manager) HandleAuthEvent(event backend.AuthEvent, session *models.Session) {
	logger.Debug("Auth state changed", zap.String("event", string(event)))
	if session == nil || event == backend.EventSignedOut {
		m.store.clear()
		return
	}
	m.store.setSession(session)
}

// SignUp registers a password user, the result is the backend's
func (m *Manager) SignUp(ctx context.Context, email, password string) (*backend.AuthResponse, error) {
	return m.client.SignUp(ctx, email, password)
}

// SignIn signs a password user in, the result is the backend's
func (m *Manager) SignIn(ctx context.Context, email, password string) (*backend.AuthResponse, error) {
	return m.client.SignInWithPassword(ctx, email, password)
}

// SignInWithOAuth runs the browser flow. A cancelled or failed attempt leaves the state untouched.
func (m *Manager) SignInWithOAuth(ctx context.Context) (*models.Session, error) {
	if m.browser == nil {
		return nil, fmt.Errorf("%w: no browser configured", ErrOAuthFailed)
	}

	authURL := m.AuthorizationURL()
	browserCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		browserCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	logger.Info("Starting OAuth sign-in", zap.String("mode", string(m.mode)))
	redirect, err := openBrowser(browserCtx, m.browser, authURL, m.returnURL)
	if err != nil {
		logger.Info("OAuth sign-in did not complete", zap.Error(err))
		return nil, err
	}

	session, err := m.completeRedirect(ctx, redirect)
	if err != nil {
		logger.Warn("OAuth sign-in failed", zap.Error(err))
		return nil, err
	}
	return session, nil
}

// AuthorizationURL is the page the browser opens first
func (m *Manager) AuthorizationURL() string {
	if m.mode == config.OAuthModeProxy {
		return m.client.AuthorizeURL(models.ProviderGoogle, m.returnURL)
	}
	return m.provider.GetAuthURL(m.state, m.callbackURL)
}

func (m *Manager) completeRedirect(ctx context.Context, redirect string) (*models.Session, error) {
	params, err := redirectParams(redirect)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed redirect: %w", ErrOAuthFailed, err)
	}
	if e := params.Get("error"); e != "" {
		return nil, fmt.Errorf("%w: provider returned %s: %s", ErrOAuthFailed, e, params.Get("error_description"))
	}

	if accessToken := params.Get("access_token"); accessToken != "" {
		session, err := m.client.SetSession(ctx, accessToken, params.Get("refresh_token"))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOAuthFailed, err)
		}
		return session, nil
	}

	code := params.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: redirect carries neither tokens nor a code", ErrOAuthFailed)
	}
	if state := params.Get("state"); state != m.state {
		return nil, fmt.Errorf("%w: state mismatch", ErrOAuthFailed)
	}
	if m.exchanger == nil {
		return nil, fmt.Errorf("%w: no exchange handler configured", ErrOAuthFailed)
	}

	resp, err := m.exchanger.Exchange(ctx, models.AuthorizationRequest{
		Code:        code,
		RedirectURI: m.callbackURL,
		State:       m.state,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOAuthFailed, err)
	}

	session, err := m.install(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOAuthFailed, err)
	}
	return session, nil
}

// install stores the exchange handler's credentials the way their token type requires
func (m *Manager) install(ctx context.Context, resp *models.ExchangeResponse) (*models.Session, error) {
	switch resp.Session.TokenType {
	case models.TokenTypeMagicLink:
		return m.client.VerifyTokenHash(ctx, resp.Session.AccessToken)
	case models.TokenTypeBearer, models.TokenTypeProvider, "":
		session := &models.Session{
			AccessToken:  resp.Session.AccessToken,
			RefreshToken: resp.Session.RefreshToken,
			TokenType:    resp.Session.TokenType,
		}
		if session.TokenType == "" {
			session.TokenType = models.TokenTypeBearer
		}
		if resp.User != nil {
			user := *resp.User
			user.Provider = models.ProviderGoogle
			session.User = &user
		}
		m.client.InstallSession(session)
		return session, nil
	default:
		return nil, fmt.Errorf("unknown token type %q", resp.Session.TokenType)
	}
}

// SignOut asks the backend to end the session and clears local state whatever the outcome
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.client.SignOut(ctx); err != nil {
		logger.Warn("Remote sign-out failed, local session cleared anyway", zap.Error(err))
	}
	m.store.clear()
	return nil
}

// Close stops listening to backend events
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}
