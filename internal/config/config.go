package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brizzai/diary-auth/internal/auth/constants"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("diary-auth version %s, commit %s, built at %s", version, commit, date)
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Backend   BackendConfig   `mapstructure:"backend"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Client    ClientConfig    `mapstructure:"client"`
}

// AuthType represents the type of authentication to use
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeAPIKey AuthType = "api_key"
	// AuthTypeServiceKey sends the key both as the apikey header and as a bearer token.
	AuthTypeServiceKey AuthType = "service_key"
)

// EndpointConfig describes a remote REST endpoint and how to authenticate against it.
type EndpointConfig struct {
	BaseURL    string            `json:"base_url" mapstructure:"base_url"`
	AuthType   AuthType          `json:"auth_type" mapstructure:"auth_type"`
	AuthConfig map[string]string `json:"auth_config" mapstructure:"auth_config"`
	Headers    map[string]string `json:"headers" mapstructure:"headers"`
	Timeout    time.Duration     `json:"timeout" mapstructure:"timeout"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Name            string        `mapstructure:"name"`
	Version         string        `mapstructure:"version"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	Color             bool   `mapstructure:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// SessionStrategy selects how the exchange handler turns a resolved user into session credentials.
type SessionStrategy string

const (
	SessionStrategyMagicLink   SessionStrategy = "magiclink"
	SessionStrategyPassword    SessionStrategy = "password"
	SessionStrategyPassthrough SessionStrategy = "passthrough"
)

type OAuthConfig struct {
	Provider     string   `mapstructure:"provider"` // only google is supported
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
	AllowOrigin  string   `mapstructure:"allow_origin"`
	State        string   `mapstructure:"state"`
	RedirectURIs []string `mapstructure:"redirect_uris"`

	// Endpoint overrides, empty means the provider defaults
	AuthURL     string `mapstructure:"auth_url"`
	TokenURL    string `mapstructure:"token_url"`
	UserInfoURL string `mapstructure:"userinfo_url"`
	Issuer      string `mapstructure:"issuer"`

	VerifyIDToken   bool            `mapstructure:"verify_id_token"`
	SessionStrategy SessionStrategy `mapstructure:"session_strategy"`
	PasswordSecret  string          `mapstructure:"password_secret"`
}

// IsAllowedRedirect reports whether uri exactly matches a registered redirect URI.
func (c *OAuthConfig) IsAllowedRedirect(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if uri == allowed {
			return true
		}
	}
	return false
}

type BackendConfig struct {
	URL      string        `mapstructure:"url"`
	AdminKey string        `mapstructure:"admin_key"`
	AnonKey  string        `mapstructure:"anon_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AdminEndpoint returns the endpoint used with the service-role key.
func (b BackendConfig) AdminEndpoint() *EndpointConfig {
	return &EndpointConfig{
		BaseURL:    b.URL,
		AuthType:   AuthTypeServiceKey,
		AuthConfig: map[string]string{"key": b.AdminKey},
		Timeout:    b.Timeout,
	}
}

// PublicEndpoint returns the endpoint used by clients with the anon key.
func (b BackendConfig) PublicEndpoint() *EndpointConfig {
	return &EndpointConfig{
		BaseURL:    b.URL,
		AuthType:   AuthTypeAPIKey,
		AuthConfig: map[string]string{"key": b.AnonKey, "header": "apikey"},
		Timeout:    b.Timeout,
	}
}

type RateLimitStore string

const (
	RateLimitStoreMemory RateLimitStore = "memory"
	RateLimitStoreRedis  RateLimitStore = "redis"
)

type RateLimitConfig struct {
	Window        time.Duration  `mapstructure:"window"`
	Limit         int            `mapstructure:"limit"`
	Store         RateLimitStore `mapstructure:"store"`
	RedisAddr     string         `mapstructure:"redis_addr"`
	RedisPassword string         `mapstructure:"redis_password"`
	RedisDB       int            `mapstructure:"redis_db"`
}

// OAuthMode selects how the client builds the authorization URL.
type OAuthMode string

const (
	// OAuthModeDirect talks to the identity provider and forwards the code to the exchange handler.
	OAuthModeDirect OAuthMode = "direct"
	// OAuthModeProxy delegates the whole flow to the backend's OAuth proxy.
	OAuthModeProxy OAuthMode = "proxy"
)

type ClientConfig struct {
	Mode         OAuthMode     `mapstructure:"mode"`
	ExchangeURL  string        `mapstructure:"exchange_url"`
	CallbackURL  string        `mapstructure:"callback_url"`
	ReturnURL    string        `mapstructure:"return_url"`
	OAuthTimeout time.Duration `mapstructure:"oauth_timeout"`
	SessionFile  string        `mapstructure:"session_file"`
}

// ExchangeEndpoint returns the endpoint for the exchange handler.
func (c ClientConfig) ExchangeEndpoint() *EndpointConfig {
	return &EndpointConfig{
		BaseURL:  c.ExchangeURL,
		AuthType: AuthTypeNone,
	}
}

// legacy environment names used by the original deployment
var envAliases = map[string][]string{
	"backend.url":         {"SUPABASE_URL"},
	"backend.admin_key":   {"SUPABASE_SERVICE_ROLE_KEY"},
	"backend.anon_key":    {"SUPABASE_ANON_KEY"},
	"oauth.client_id":     {"GOOGLE_CLIENT_ID"},
	"oauth.client_secret": {"GOOGLE_CLIENT_SECRET"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", constants.DefaultPort)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.name", "diary-auth")
	v.SetDefault("server.version", version)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("oauth.provider", "google")
	v.SetDefault("oauth.scopes", constants.DefaultScopes)
	v.SetDefault("oauth.allow_origin", "https://coachpack.org")
	v.SetDefault("oauth.state", "simplediaryapp")
	v.SetDefault("oauth.redirect_uris", []string{
		"https://coachpack.org/auth/callback",
		"https://www.coachpack.org/auth/callback",
	})
	v.SetDefault("oauth.session_strategy", string(SessionStrategyMagicLink))

	v.SetDefault("backend.timeout", 30*time.Second)

	v.SetDefault("rate_limit.window", constants.DefaultRateWindow)
	v.SetDefault("rate_limit.limit", constants.DefaultRateLimit)
	v.SetDefault("rate_limit.store", string(RateLimitStoreMemory))

	v.SetDefault("client.mode", string(OAuthModeDirect))
	v.SetDefault("client.callback_url", "https://coachpack.org/auth/callback")
	v.SetDefault("client.return_url", "simplediaryapp://auth/callback")
	v.SetDefault("client.oauth_timeout", 5*time.Minute)
}

// Load reads the configuration from config files, environment and the given flags.
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DIARY_AUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		envs := append([]string{"DIARY_AUTH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, err
		}
	}

	configFile := ""
	if flags != nil {
		if f := flags.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/diary-auth")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config files are optional, everything can come from the environment
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &config, nil
}

// flag name -> config key
var flagKeys = map[string]string{
	"host":             "server.host",
	"port":             "server.port",
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"session-strategy": "oauth.session_strategy",
	"exchange-url":     "client.exchange_url",
	"oauth-mode":       "client.mode",
	"session-file":     "client.session_file",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// ValidateServer checks the settings needed to run the exchange handler.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.OAuth.Provider != "google" {
		errs = append(errs, fmt.Errorf("unsupported oauth.provider %q", c.OAuth.Provider))
	}
	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		errs = append(errs, errors.New("oauth.client_id and oauth.client_secret are required, set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET"))
	}
	if c.OAuth.State == "" {
		errs = append(errs, errors.New("oauth.state must not be empty"))
	}
	if len(c.OAuth.RedirectURIs) == 0 {
		errs = append(errs, errors.New("oauth.redirect_uris must list at least one uri"))
	}
	if c.OAuth.AllowOrigin == "" {
		errs = append(errs, errors.New("oauth.allow_origin is required"))
	}
	switch c.OAuth.SessionStrategy {
	case SessionStrategyMagicLink, SessionStrategyPassthrough:
	case SessionStrategyPassword:
		if c.OAuth.PasswordSecret == "" && c.Backend.AdminKey == "" {
			errs = append(errs, errors.New("oauth.password_secret is required for the password strategy"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown oauth.session_strategy %q", c.OAuth.SessionStrategy))
	}
	if c.Backend.URL == "" || c.Backend.AdminKey == "" {
		errs = append(errs, errors.New("backend.url and backend.admin_key are required, set SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY"))
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("rate_limit.window and rate_limit.limit must be positive"))
	}
	if c.RateLimit.Store == RateLimitStoreRedis && c.RateLimit.RedisAddr == "" {
		errs = append(errs, errors.New("rate_limit.redis_addr is required for the redis store"))
	}
	return errors.Join(errs...)
}

// ValidateClient checks the settings needed by the session manager.
func (c *Config) ValidateClient() error {
	var errs []error
	if c.Backend.URL == "" || c.Backend.AnonKey == "" {
		errs = append(errs, errors.New("backend.url and backend.anon_key are required"))
	}
	switch c.Client.Mode {
	case OAuthModeDirect:
		if c.Client.ExchangeURL == "" {
			errs = append(errs, errors.New("client.exchange_url is required in direct mode"))
		}
		if c.OAuth.ClientID == "" {
			errs = append(errs, errors.New("oauth.client_id is required in direct mode"))
		}
	case OAuthModeProxy:
	default:
		errs = append(errs, fmt.Errorf("unknown client.mode %q", c.Client.Mode))
	}
	if c.Client.ReturnURL == "" {
		errs = append(errs, errors.New("client.return_url is required"))
	}
	return errors.Join(errs...)
}
