package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/NineNineAFK/verto/internal/logging"
	"github.com/NineNineAFK/verto/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	HeaderUserID          = "X-User-ID"
	HeaderRequestID       = "X-Request-ID"
	HeaderMerchantOrderID = "X-Merchant-Order-ID"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

// AuthMiddleware trusts the identity resolved upstream and passed in X-User-ID. Requests
// without a valid user id are rejected.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := primitive.ObjectIDFromHex(strings.TrimSpace(r.Header.Get(HeaderUserID)))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		log := logging.FromContext(ctx).With(zap.String("user_id", userID.Hex()))
		ctx = logging.ContextWithLogger(ctx, log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware adds a unique request ID to each request and a logger carrying it to
// the request context.
func RequestIDMiddleware(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			ctx = logging.ContextWithLogger(ctx, base.With(zap.String("request_id", requestID)))
			w.Header().Set(HeaderRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLogMiddleware logs every request once it completes and records it in m.
func AccessLogMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			m.HTTPRequest(r.Method, route, status, elapsed)

			logging.FromContext(r.Context()).Info("request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed))
		})
	}
}

func getUserIDFromContext(ctx context.Context) (primitive.ObjectID, bool) {
	userID, ok := ctx.Value(userIDKey).(primitive.ObjectID)
	return userID, ok && !userID.IsZero()
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
