package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "simplediaryapp", cfg.OAuth.State)
	assert.Equal(t, "https://coachpack.org", cfg.OAuth.AllowOrigin)
	assert.Equal(t, []string{
		"https://coachpack.org/auth/callback",
		"https://www.coachpack.org/auth/callback",
	}, cfg.OAuth.RedirectURIs)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.RateLimit.Limit)
	assert.Equal(t, RateLimitStoreMemory, cfg.RateLimit.Store)
	assert.Equal(t, SessionStrategyMagicLink, cfg.OAuth.SessionStrategy)
	assert.Equal(t, OAuthModeDirect, cfg.Client.Mode)
	assert.Equal(t, "simplediaryapp://auth/callback", cfg.Client.ReturnURL)
	assert.Equal(t, 5*time.Minute, cfg.Client.OAuthTimeout)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-key")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "https://project.supabase.co", cfg.Backend.URL)
	assert.Equal(t, "service-key", cfg.Backend.AdminKey)
	assert.Equal(t, "client-id", cfg.OAuth.ClientID)
	assert.Equal(t, "client-secret", cfg.OAuth.ClientSecret)
	assert.NoError(t, cfg.ValidateServer())
}

func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUPABASE_URL", "https://legacy.example")
	t.Setenv("DIARY_AUTH_BACKEND_URL", "https://current.example")
	t.Setenv("DIARY_AUTH_RATE_LIMIT_LIMIT", "3")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "https://current.example", cfg.Backend.URL)
	assert.Equal(t, 3, cfg.RateLimit.Limit)
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diary.yaml")
	content := `
oauth:
  client_id: file-client
  session_strategy: passthrough
rate_limit:
  window: 30s
  store: redis
  redis_addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.Int("port", 0, "")
	require.NoError(t, flags.Parse([]string{"--config", path, "--port", "9090"}))

	cfg, err := Load(flags)
	require.NoError(t, err)

	assert.Equal(t, "file-client", cfg.OAuth.ClientID)
	assert.Equal(t, SessionStrategyPassthrough, cfg.OAuth.SessionStrategy)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, RateLimitStoreRedis, cfg.RateLimit.Store)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	require.NoError(t, flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))

	_, err := Load(flags)
	assert.Error(t, err)
}

func TestValidateServer(t *testing.T) {
	valid := func() *Config {
		return &Config{
			OAuth: OAuthConfig{
				Provider:        "google",
				ClientID:        "id",
				ClientSecret:    "secret",
				State:           "simplediaryapp",
				RedirectURIs:    []string{"https://coachpack.org/auth/callback"},
				AllowOrigin:     "https://coachpack.org",
				SessionStrategy: SessionStrategyMagicLink,
			},
			Backend:   BackendConfig{URL: "https://backend", AdminKey: "admin"},
			RateLimit: RateLimitConfig{Window: time.Minute, Limit: 10, Store: RateLimitStoreMemory},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing client secret", mutate: func(c *Config) { c.OAuth.ClientSecret = "" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.OAuth.Provider = "github" }, wantErr: true},
		{name: "unknown strategy", mutate: func(c *Config) { c.OAuth.SessionStrategy = "cookie" }, wantErr: true},
		{name: "password strategy falls back to admin key", mutate: func(c *Config) { c.OAuth.SessionStrategy = SessionStrategyPassword }},
		{name: "redis without address", mutate: func(c *Config) { c.RateLimit.Store = RateLimitStoreRedis }, wantErr: true},
		{name: "zero limit", mutate: func(c *Config) { c.RateLimit.Limit = 0 }, wantErr: true},
		{name: "missing backend", mutate: func(c *Config) { c.Backend.URL = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateServer()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateClient(t *testing.T) {
	cfg := &Config{
		Backend: BackendConfig{URL: "https://backend", AnonKey: "anon"},
		Client:  ClientConfig{Mode: OAuthModeProxy, ReturnURL: "simplediaryapp://auth/callback"},
	}
	assert.NoError(t, cfg.ValidateClient())

	cfg.Client.Mode = OAuthModeDirect
	assert.Error(t, cfg.ValidateClient(), "direct mode needs an exchange url and client id")

	cfg.Client.ExchangeURL = "https://coachpack.org/api/google-auth"
	cfg.OAuth.ClientID = "id"
	assert.NoError(t, cfg.ValidateClient())
}

func TestIsAllowedRedirect(t *testing.T) {
	cfg := OAuthConfig{RedirectURIs: []string{"https://a/cb", "https://b/cb"}}
	assert.True(t, cfg.IsAllowedRedirect("https://a/cb"))
	assert.False(t, cfg.IsAllowedRedirect("https://a/cb/"))
	assert.False(t, cfg.IsAllowedRedirect(""))
}

// chdir changes the working directory for the test and restores it on
// cleanup, like testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
