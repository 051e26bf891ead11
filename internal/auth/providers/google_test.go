package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGoogle struct {
	tokenStatus    int
	userInfoStatus int
	userInfo       map[string]string
	tokenForm      url.Values
	bearer         string
	tokenCalls     int
	userInfoCalls  int
}

func (f *fakeGoogle) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		require.NoError(t, r.ParseForm())
		f.tokenForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if f.tokenStatus != 0 && f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "google-access",
			"refresh_token": "google-refresh",
			"id_token":      "google-id-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.userInfoCalls++
		f.bearer = r.Header.Get("Authorization")
		if f.userInfoStatus != 0 && f.userInfoStatus != http.StatusOK {
			w.WriteHeader(f.userInfoStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.userInfo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, srv *httptest.Server, opts ...GoogleOption) *GoogleProvider {
	t.Helper()
	cfg := &config.OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
	}
	p, err := NewGoogleProvider(context.Background(), cfg, append([]GoogleOption{WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return p
}

func TestGoogleProvider_ExchangeCode(t *testing.T) {
	fake := &fakeGoogle{}
	p := newTestProvider(t, fake.server(t))

	tokens, err := p.ExchangeCode(context.Background(), "auth-code", "https://coachpack.org/auth/callback")
	require.NoError(t, err)

	assert.Equal(t, "google-access", tokens.AccessToken)
	assert.Equal(t, "google-refresh", tokens.RefreshToken)
	assert.Equal(t, "google-id-token", tokens.IDToken)

	assert.Equal(t, "client-id", fake.tokenForm.Get("client_id"))
	assert.Equal(t, "client-secret", fake.tokenForm.Get("client_secret"))
	assert.Equal(t, "auth-code", fake.tokenForm.Get("code"))
	assert.Equal(t, "authorization_code", fake.tokenForm.Get("grant_type"))
	assert.Equal(t, "https://coachpack.org/auth/callback", fake.tokenForm.Get("redirect_uri"))
}

func TestGoogleProvider_ExchangeCodeRejected(t *testing.T) {
	fake := &fakeGoogle{tokenStatus: http.StatusBadRequest}
	p := newTestProvider(t, fake.server(t))

	_, err := p.ExchangeCode(context.Background(), "bad-code", "https://coachpack.org/auth/callback")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExchange)
}

func TestGoogleProvider_FetchProfile(t *testing.T) {
	fake := &fakeGoogle{userInfo: map[string]string{
		"id":      "1234",
		"email":   "a@x.com",
		"name":    "A",
		"picture": "https://img/a.png",
	}}
	p := newTestProvider(t, fake.server(t))

	profile, err := p.FetchProfile(context.Background(), &models.TokenSet{AccessToken: "google-access"})
	require.NoError(t, err)

	assert.Equal(t, &models.Profile{
		ProviderID:  "1234",
		Email:       "a@x.com",
		DisplayName: "A",
		AvatarURL:   "https://img/a.png",
	}, profile)
	assert.Equal(t, "Bearer google-access", fake.bearer)
}

func TestGoogleProvider_FetchProfileFailures(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeGoogle
	}{
		{name: "non-2xx", fake: &fakeGoogle{userInfoStatus: http.StatusUnauthorized}},
		{name: "missing email", fake: &fakeGoogle{userInfo: map[string]string{"id": "1", "name": "A"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, tt.fake.server(t))
			_, err := p.FetchProfile(context.Background(), &models.TokenSet{AccessToken: "t"})
			assert.ErrorIs(t, err, ErrProfile)
		})
	}
}

func TestGoogleProvider_FetchProfileRejectsBadIDToken(t *testing.T) {
	fake := &fakeGoogle{userInfo: map[string]string{"id": "1", "email": "a@x.com"}}
	verifier := oidc.NewVerifier("https://accounts.google.com", &oidc.StaticKeySet{}, &oidc.Config{ClientID: "client-id"})
	p := newTestProvider(t, fake.server(t), WithVerifier(verifier))

	_, err := p.FetchProfile(context.Background(), &models.TokenSet{AccessToken: "t", IDToken: "not-a-jwt"})
	assert.ErrorIs(t, err, ErrProfile)

	// without an id token there is nothing to verify
	_, err = p.FetchProfile(context.Background(), &models.TokenSet{AccessToken: "t"})
	assert.NoError(t, err)
}

func TestGoogleProvider_GetAuthURL(t *testing.T) {
	fake := &fakeGoogle{}
	p := newTestProvider(t, fake.server(t))

	raw := p.GetAuthURL("simplediaryapp", "https://coachpack.org/auth/callback")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "simplediaryapp", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "https://coachpack.org/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
}
