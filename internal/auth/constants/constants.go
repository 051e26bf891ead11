package constants

import "time"

const (
	// DefaultPort is the default port for the exchange server
	DefaultPort = 8888

	// TokenType for Bearer authentication
	TokenType = "Bearer"

	// ExchangePath is where the code exchange handler is mounted
	ExchangePath = "/api/google-auth"

	// HealthPath is the liveness endpoint
	HealthPath = "/healthz"

	// UnknownClient is the rate limit bucket for requests without forwarding headers
	UnknownClient = "unknown"

	// RequestIDHeader carries the per-request id used in audit lines
	RequestIDHeader = "X-Request-ID"
)

// Headers consulted, in order, to identify the calling client
var ClientIPHeaders = []string{"X-Forwarded-For", "Client-IP"}

// OAuth scopes
var DefaultScopes = []string{"openid", "email", "profile"}

// Google endpoints
const (
	GoogleIssuer      = "https://accounts.google.com"
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// Rate limit defaults
const (
	DefaultRateWindow = time.Minute
	DefaultRateLimit  = 10
)

// Client-facing error messages. Provider and backend details are only logged.
const (
	MsgMethodNotAllowed   = "Method not allowed"
	MsgTooManyRequests    = "Too many requests"
	MsgInvalidBody        = "Invalid request body"
	MsgCodeRequired       = "Authorization code is required"
	MsgInvalidState       = "Invalid state parameter"
	MsgInvalidRedirect    = "Invalid redirect URI"
	MsgTokenExchange      = "Failed to exchange code for tokens"
	MsgUserInfo           = "Failed to get user info"
	MsgCreateUser         = "Failed to create user"
	MsgCreateSession      = "Failed to create session"
	MsgInternalError      = "Internal server error"
)
