package http

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelhttp "go.opentelemetry.io/otel/propagation"

	"github.com/robertarktes/coworking-booking-engine/internal/idempotency"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	userKey
)

// LoggerFrom returns the request-scoped logger, or fallback outside a request.
func LoggerFrom(ctx context.Context, fallback observability.Logger) observability.Logger {
	if l, ok := ctx.Value(loggerKey).(observability.Logger); ok {
		return l
	}
	return fallback
}

// UserFromContext returns the authenticated subject, or "" for anonymous requests.
func UserFromContext(ctx context.Context) string {
	s, _ := ctx.Value(userKey).(string)
	return s
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := context.WithValue(r.Context(), loggerKey, entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware counts requests by chi route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

type UserClaims struct {
	jwt.RegisteredClaims
}

// JWTMiddleware authenticates HS256 bearer tokens and stores the subject in
// the request context. Requests without a token pass through anonymously;
// handlers that need a user reject them. A malformed or expired token is
// rejected here, as is any token when no secret is configured.
func JWTMiddleware(secret []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(secret) == 0 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication_required", Message: "authentication is not configured"})
				return
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication_required", Message: "expected bearer token"})
				return
			}
			var claims UserClaims
			_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || claims.Subject == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication_required", Message: "invalid token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.Subject)))
		})
	}
}

type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) bool
}

// RateLimitMiddleware limits per authenticated user when there is one and
// per client IP otherwise.
func RateLimitMiddleware(rl Limiter, scope string, rate int, period time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":ip:" + clientIP(r)
			if userID := UserFromContext(r.Context()); userID != "" {
				key = scope + ":user:" + userID
			}
			if !rl.Allow(r.Context(), key, rate, period) {
				w.Header().Set("Retry-After", strconv.Itoa(int(period.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (*idempotency.Response, error)
	Finish(ctx context.Context, key string, resp idempotency.Response) error
	Abort(ctx context.Context, key string) error
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key. Requests without the header are processed normally.
// Retryable failures are not stored so the client can try again.
func IdempotencyMiddleware(idemp IdempotencyStore, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < 16 || len(key) > 128 {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_idempotency_key", Message: "Idempotency-Key must be 16 to 128 characters"})
				return
			}
			if userID := UserFromContext(r.Context()); userID != "" {
				key = userID + ":" + key
			}

			stored, err := idemp.Begin(r.Context(), key)
			if err != nil {
				status, code := statusFor(err)
				if status == http.StatusInternalServerError {
					LoggerFrom(r.Context(), logger).WithError(err).Warn("idempotency store unavailable, processing without it")
					next.ServeHTTP(w, r)
					return
				}
				writeJSON(w, status, errorBody{Error: code, Message: err.Error()})
				return
			}
			if stored != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				w.Write(stored.Result)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			var body bytes.Buffer
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			ctx := context.WithoutCancel(r.Context())
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
				if err := idemp.Abort(ctx, key); err != nil {
					LoggerFrom(r.Context(), logger).WithError(err).Warn("release idempotency key")
				}
				return
			}
			if err := idemp.Finish(ctx, key, idempotency.Response{Status: status, Result: body.Bytes()}); err != nil {
				LoggerFrom(r.Context(), logger).WithError(err).Warn("store idempotent response")
			}
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), otelhttp.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
