// Package handler provides HTTP request handling for the exchange server.
package handler

import (
	"net/http"
	"time"

	"github.com/brizzai/diary-auth/internal/auth"
	"github.com/brizzai/diary-auth/internal/auth/constants"
	"github.com/brizzai/diary-auth/internal/auth/middleware"
	"github.com/brizzai/diary-auth/internal/utils"
	"go.uber.org/zap"
)

// Handler manages HTTP request handling and middleware configuration.
type Handler struct {
	auth *auth.Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(auth *auth.Service) *Handler {
	return &Handler{
		auth: auth,
	}
}

// CreateHTTPHandler mounts the exchange route and the health check behind
// request ids, CORS and access logging.
func (h *Handler) CreateHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	h.auth.RegisterRoutes(mux)
	mux.HandleFunc(constants.HealthPath, handleHealth)

	return h.auth.WrapWithMiddleware(logRequests(mux))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		middleware.Logger(r.Context()).Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client", middleware.ClientIdentifier(r)),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}
