package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/logger"
	"github.com/brizzai/diary-auth/internal/requester"
	"go.uber.org/zap"
)

// AuthEvent names a change in the client's auth state
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthStateListener receives every auth state change, session is nil after sign-out
type AuthStateListener func(event AuthEvent, session *models.Session)

// Client is the device-side auth client. It holds at most one session.
type Client struct {
	req     *requester.HTTPRequester
	baseURL string
	storage Storage
	now     func() time.Time

	mu        sync.Mutex
	session   *models.Session
	loaded    bool
	listeners map[int]AuthStateListener
	order     []int
	nextID    int
}

// NewClient creates a client using the anon key
func NewClient(cfg config.BackendConfig, storage Storage) *Client {
	return NewClientWithRequester(cfg.URL, requester.NewHTTPRequester(cfg.PublicEndpoint(), nil), storage)
}

// NewClientWithRequester is used when the requester needs a custom transport
func NewClientWithRequester(baseURL string, req *requester.HTTPRequester, storage Storage) *Client {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Client{
		req:       req,
		baseURL:   strings.TrimRight(baseURL, "/"),
		storage:   storage,
		now:       time.Now,
		listeners: make(map[int]AuthStateListener),
	}
}

// OnAuthStateChange registers listener and returns a function that removes it
func (c *Client) OnAuthStateChange(listener AuthStateListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	c.order = append(c.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners, id)
			for i, v := range c.order {
				if v == id {
					c.order = append(c.order[:i], c.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (c *Client) emit(event AuthEvent, session *models.Session) {
	c.mu.Lock()
	listeners := make([]AuthStateListener, 0, len(c.order))
	for _, id := range c.order {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(event, session)
	}
}

// GetSession returns the current session, recovering it from storage on first use.
// An expired session is refreshed when it carries a refresh token.
func (c *Client) GetSession(ctx context.Context) (*models.Session, error) {
	c.mu.Lock()
	if !c.loaded {
		stored, err := c.storage.Load()
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("recover session: %w", err)
		}
		c.session = stored
		c.loaded = true
	}
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil, nil
	}
	if !session.Expired(c.now()) {
		return session, nil
	}
	if session.RefreshToken == "" {
		c.clear()
		return nil, nil
	}
	return c.RefreshSession(ctx)
}

// SignUp registers a password user. The session is nil while email confirmation is pending.
func (c *Client) SignUp(ctx context.Context, email, password string) (*AuthResponse, error) {
	resp, err := c.req.Do(ctx, &requester.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/signup",
		JSON: map[string]string{
			"email":    email,
			"password": password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("sign up: %w", parseAPIError(resp))
	}

	result, err := decodeAuthResponse(resp, c.now())
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if result.Session != nil {
		c.install(result.Session, EventSignedIn)
	}
	return result, nil
}

// SignInWithPassword signs a password user in
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	result, err := passwordGrant(ctx, c.req, email, password)
	if err != nil {
		return nil, err
	}
	if result.Session != nil {
		c.install(result.Session, EventSignedIn)
	}
	return result, nil
}

// SetSession validates raw backend tokens against the user endpoint and installs them
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*models.Session, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("set session: access token is required")
	}
	user, err := c.getUser(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("set session: %w", err)
	}
	session := &models.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    models.TokenTypeBearer,
		User:         user,
	}
	c.install(session, EventSignedIn)
	return session, nil
}

// InstallSession stores credentials issued elsewhere without contacting the backend
func (c *Client) InstallSession(session *models.Session) {
	s := *session
	c.install(&s, EventSignedIn)
}

// VerifyTokenHash redeems a hashed magic-link token for a session
func (c *Client) VerifyTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	resp, err := c.req.Do(ctx, &requester.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/verify",
		JSON: map[string]string{
			"type":       LinkTypeMagicLink,
			"token_hash": tokenHash,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("verify token: %w", parseAPIError(resp))
	}
	result, err := decodeAuthResponse(resp, c.now())
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if result.Session == nil {
		return nil, fmt.Errorf("verify token: no session issued")
	}
	c.install(result.Session, EventSignedIn)
	return result.Session, nil
}

// RefreshSession trades the refresh token for a new session
func (c *Client) RefreshSession(ctx context.Context) (*models.Session, error) {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoSession
	}

	resp, err := c.req.Do(ctx, &requester.Request{
		Method: http.MethodPost,
		Path:   "/auth/v1/token",
		Query:  url.Values{"grant_type": {"refresh_token"}},
		JSON:   map[string]string{"refresh_token": current.RefreshToken},
	})
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if !resp.IsSuccess() {
		apiErr := parseAPIError(resp)
		if apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized {
			// the refresh token is dead, nothing left to recover
			c.clear()
		}
		return nil, fmt.Errorf("refresh session: %w", apiErr)
	}

	result, err := decodeAuthResponse(resp, c.now())
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if result.Session == nil {
		return nil, fmt.Errorf("refresh session: no session issued")
	}
	if result.Session.User == nil {
		result.Session.User = current.User
	}
	c.install(result.Session, EventTokenRefreshed)
	return result.Session, nil
}

// SignOut revokes the session remotely and always drops it locally.
// The returned error only reports the remote call.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()

	var remoteErr error
	if current != nil && current.AccessToken != "" && current.TokenType != models.TokenTypeProvider {
		resp, err := c.req.Do(ctx, &requester.Request{
			Method:      http.MethodPost,
			Path:        "/auth/v1/logout",
			BearerToken: current.AccessToken,
		})
		switch {
		case err != nil:
			remoteErr = fmt.Errorf("sign out: %w", err)
		case !resp.IsSuccess():
			remoteErr = fmt.Errorf("sign out: %w", parseAPIError(resp))
		}
	}

	c.clear()
	return remoteErr
}

// AuthorizeURL is the backend's OAuth proxy entry point for provider
func (c *Client) AuthorizeURL(provider models.Provider, redirectTo string) string {
	q := url.Values{
		"provider":    {string(provider)},
		"redirect_to": {redirectTo},
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode()
}

func (c *Client) getUser(ctx context.Context, accessToken string) (*models.User, error) {
	resp, err := c.req.Do(ctx, &requester.Request{
		Path:        "/auth/v1/user",
		BearerToken: accessToken,
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, parseAPIError(resp)
	}
	var u apiUser
	if err := resp.Decode(&u); err != nil {
		return nil, err
	}
	return u.toModel(), nil
}

func (c *Client) install(session *models.Session, event AuthEvent) {
	c.mu.Lock()
	c.session = session
	c.loaded = true
	if err := c.storage.Save(session); err != nil {
		logger.Warn("Failed to persist session", zap.Error(err))
	}
	c.mu.Unlock()

	c.emit(event, session)
}

func (c *Client) clear() {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.loaded = true
	if err := c.storage.Clear(); err != nil {
		logger.Warn("Failed to clear stored session", zap.Error(err))
	}
	c.mu.Unlock()

	if had {
		c.emit(EventSignedOut, nil)
	}
}

// IsAuthError reports whether err came back from the auth service with a 4xx status
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}
