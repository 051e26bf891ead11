package auth

import (
	"context"
	"net/http"

	"github.com/brizzai/diary-auth/internal/auth/constants"
	"github.com/brizzai/diary-auth/internal/auth/handlers"
	"github.com/brizzai/diary-auth/internal/auth/middleware"
	"github.com/brizzai/diary-auth/internal/auth/providers"
	"github.com/brizzai/diary-auth/internal/backend"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/ratelimit"
	"go.uber.org/fx"
)

// Service represents the OAuth exchange service
type Service struct {
	config       *config.OAuthConfig
	authProvider providers.Provider
	handler      *handlers.Handler
}

// NewService creates a new OAuth service
func NewService(cfg *config.OAuthConfig, provider providers.Provider, handler *handlers.Handler) *Service {
	return &Service{
		config:       cfg,
		authProvider: provider,
		handler:      handler,
	}
}

// RegisterRoutes registers the exchange route
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(constants.ExchangePath, s.handler.HandleExchange)
}

// WrapWithMiddleware adds request ids and the CORS headers of the allowed origin
func (s *Service) WrapWithMiddleware(handler http.Handler) http.Handler {
	return middleware.RequestID(middleware.CORSWithOrigin(s.config.AllowOrigin)(handler))
}

// GetProvider returns the configured auth provider
func (s *Service) GetProvider() providers.Provider {
	return s.authProvider
}

func newProvider(cfg *config.Config) (providers.Provider, error) {
	return providers.NewGoogleProvider(context.Background(), &cfg.OAuth)
}

func newMaterializer(cfg *config.Config, admin *backend.AdminClient) (handlers.Materializer, error) {
	return handlers.NewMaterializer(cfg, admin)
}

func newHandler(cfg *config.Config, provider providers.Provider, admin *backend.AdminClient, m handlers.Materializer, limiter *ratelimit.Limiter) *handlers.Handler {
	return handlers.NewHandler(&cfg.OAuth, provider, admin, m, limiter)
}

func newService(cfg *config.Config, provider providers.Provider, handler *handlers.Handler) *Service {
	return NewService(&cfg.OAuth, provider, handler)
}

// Module provides the exchange service and everything it needs except the backend and limiter
var Module = fx.Module("auth",
	fx.Provide(
		newProvider,
		newMaterializer,
		newHandler,
		newService,
	),
)
