package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brizzai/diary-auth/internal/auth"
	"github.com/brizzai/diary-auth/internal/auth/handlers"
	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/backend"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{}

func (stubProvider) GetAuthURL(state, redirectURI string) string { return "" }

func (stubProvider) ExchangeCode(context.Context, string, string) (*models.TokenSet, error) {
	return &models.TokenSet{AccessToken: "ga", RefreshToken: "gr"}, nil
}

func (stubProvider) FetchProfile(context.Context, *models.TokenSet) (*models.Profile, error) {
	return &models.Profile{ProviderID: "g1", Email: "a@x.com", DisplayName: "A"}, nil
}

type stubUsers struct{}

func (stubUsers) CreateUser(_ context.Context, attrs backend.UserAttributes) (*models.User, error) {
	return &models.User{ID: "u1", Email: attrs.Email}, nil
}

func (stubUsers) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, backend.ErrUserNotFound
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.OAuth.State = "simplediaryapp"
	cfg.OAuth.AllowOrigin = "https://coachpack.org"
	cfg.OAuth.RedirectURIs = []string{"https://coachpack.org/auth/callback"}

	h := handlers.NewHandler(&cfg.OAuth, stubProvider{}, stubUsers{}, handlers.PassthroughMaterializer{}, nil)
	return NewServer(cfg, auth.NewService(&cfg.OAuth, stubProvider{}, h))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "https://coachpack.org", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestExchangeRouteMounted(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/google-auth", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())
}

func TestServeAndShutdown(t *testing.T) {
	s := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/google-auth"
	body := `{"code":"c","redirectUri":"https://coachpack.org/auth/callback","state":"simplediaryapp"}`
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out models.ExchangeResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "ga", out.Session.AccessToken)
	assert.Equal(t, models.TokenTypeProvider, out.Session.TokenType)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
