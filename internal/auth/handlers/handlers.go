package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/brizzai/diary-auth/internal/auth/constants"
	"github.com/brizzai/diary-auth/internal/auth/middleware"
	"github.com/brizzai/diary-auth/internal/auth/models"
	"github.com/brizzai/diary-auth/internal/auth/providers"
	"github.com/brizzai/diary-auth/internal/backend"
	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/ratelimit"
	"github.com/brizzai/diary-auth/internal/utils"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// UserAdmin creates and looks up backend users
type UserAdmin interface {
	CreateUser(ctx context.Context, attrs backend.UserAttributes) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Limiter throttles requests per client
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Handler exchanges a provider authorization code for a backend session
type Handler struct {
	cfg          *config.OAuthConfig
	provider     providers.Provider
	users        UserAdmin
	materializer Materializer
	limiter      Limiter
}

// NewHandler creates a new Handler instance
func NewHandler(cfg *config.OAuthConfig, provider providers.Provider, users UserAdmin, materializer Materializer, limiter Limiter) *Handler {
	return &Handler{
		cfg:          cfg,
		provider:     provider,
		users:        users,
		materializer: materializer,
		limiter:      limiter,
	}
}

// HandleExchange serves POST requests carrying an AuthorizationRequest
func (h *Handler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	log := middleware.Logger(r.Context())
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Panic while handling exchange",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			utils.WriteError(w, constants.MsgInternalError, http.StatusInternalServerError)
		}
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	resp, err := h.exchange(r.Context(), r)
	if err != nil {
		var exErr *Error
		if !errors.As(err, &exErr) {
			exErr = newError(KindInternal, constants.MsgInternalError, err)
		}
		fields := []zap.Field{
			zap.String("kind", exErr.Kind.String()),
			zap.Int("status", exErr.Kind.Status()),
		}
		if exErr.Err != nil {
			fields = append(fields, zap.Error(exErr.Err))
		}
		if exErr.Kind.Status() >= http.StatusInternalServerError {
			log.Error(exErr.Message, fields...)
		} else {
			log.Warn(exErr.Message, fields...)
		}
		utils.WriteError(w, exErr.Message, exErr.Kind.Status())
		return
	}

	log.Info("Exchange succeeded",
		zap.String("user_id", resp.User.ID),
		zap.String("token_type", resp.Session.TokenType),
	)
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) exchange(ctx context.Context, r *http.Request) (*models.ExchangeResponse, error) {
	if r.Method != http.MethodPost {
		return nil, newError(KindMethodNotAllowed, constants.MsgMethodNotAllowed, fmt.Errorf("method %s", r.Method))
	}

	client := middleware.ClientIdentifier(r)
	if h.limiter != nil {
		// store errors are logged by the limiter, the decision already lets the request through
		decision, _ := h.limiter.Allow(ctx, client)
		if !decision.Allowed {
			return nil, newError(KindRateLimited, constants.MsgTooManyRequests, fmt.Errorf("client %s made %d requests", client, decision.Count))
		}
	}

	var req models.AuthorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, newError(KindInvalidRequest, constants.MsgInvalidBody, err)
	}
	if req.Code == "" {
		return nil, newError(KindInvalidRequest, constants.MsgCodeRequired, nil)
	}
	if req.State != h.cfg.State {
		return nil, newError(KindInvalidRequest, constants.MsgInvalidState, fmt.Errorf("state %q", req.State))
	}
	if !h.cfg.IsAllowedRedirect(req.RedirectURI) {
		return nil, newError(KindInvalidRequest, constants.MsgInvalidRedirect, fmt.Errorf("redirect uri %q", req.RedirectURI))
	}

	tokens, err := h.provider.ExchangeCode(ctx, req.Code, req.RedirectURI)
	if err != nil {
		return nil, newError(KindInvalidRequest, constants.MsgTokenExchange, err)
	}

	profile, err := h.provider.FetchProfile(ctx, tokens)
	if err != nil {
		return nil, newError(KindInvalidRequest, constants.MsgUserInfo, err)
	}

	user, err := h.provision(ctx, profile)
	if err != nil {
		return nil, newError(KindProvisioningFailed, constants.MsgCreateUser, err)
	}

	session, err := h.materializer.Materialize(ctx, user, tokens)
	if err != nil {
		return nil, newError(KindSessionCreationFailed, constants.MsgCreateSession, fmt.Errorf("%s strategy: %w", h.materializer.Name(), err))
	}

	return &models.ExchangeResponse{
		Success: true,
		User: &models.User{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: profile.DisplayName,
			AvatarURL:   profile.AvatarURL,
		},
		Session: &models.Session{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			TokenType:    session.TokenType,
		},
	}, nil
}

// provision creates the backend user for profile, or finds the one already registered
func (h *Handler) provision(ctx context.Context, profile *models.Profile) (*models.User, error) {
	attrs := backend.UserAttributes{
		Email:        profile.Email,
		EmailConfirm: true,
		UserMetadata: map[string]interface{}{
			"full_name":   profile.DisplayName,
			"avatar_url":  profile.AvatarURL,
			"provider":    string(models.ProviderGoogle),
			"provider_id": profile.ProviderID,
		},
	}
	h.materializer.Prepare(&attrs)

	user, err := h.users.CreateUser(ctx, attrs)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, backend.ErrUserExists) {
		return nil, err
	}

	user, err = h.users.GetUserByEmail(ctx, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup of existing user: %w", err)
	}
	return user, nil
}
