package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/brizzai/diary-auth/internal/auth/constants"
	"github.com/brizzai/diary-auth/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type requestIDKey struct{}

// RequestID tags each request with an id, reusing the caller's X-Request-ID when present
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(constants.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(constants.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id set by RequestID, or "" outside of it
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// CORSWithOrigin sets the cross-origin headers for the single allowed origin.
// Preflight requests are not answered here, the handler rejects them like any other non-POST.
func CORSWithOrigin(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", http.MethodPost)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIdentifier picks the rate limit key for r: the first X-Forwarded-For hop,
// then Client-IP, then "unknown". The headers are caller controlled.
func ClientIdentifier(r *http.Request) string {
	for _, header := range constants.ClientIPHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		first, _, _ := strings.Cut(value, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return constants.UnknownClient
}

// Logger returns the global logger annotated with the request id of ctx
func Logger(ctx context.Context) *zap.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger.GetLogger()
}
