// internal/api/middleware.go
package api

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"astro-backend-llm/internal/common/config"
	apperrors "astro-backend-llm/internal/common/errors"
	"astro-backend-llm/internal/common/logger"
	"astro-backend-llm/internal/common/metrics"
	"astro-backend-llm/internal/common/ratelimit"
)

const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "requestID"

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestIDFromContext returns the request ID set by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID reuses a well-formed incoming X-Request-ID or assigns a new UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// AccessLog logs one line per request.
func AccessLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			fields := map[string]interface{}{
				"requestId":  RequestIDFromContext(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"bytes":      rec.bytes,
				"durationMs": time.Since(start).Milliseconds(),
				"remoteAddr": clientKey(r),
			}
			if rec.status >= http.StatusInternalServerError {
				log.Warn("request completed", fields)
				return
			}
			log.Info("request completed", fields)
		})
	}
}

// CORS applies the configured cross-origin policy.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
	}
	// Browsers refuse "*" on credentialed responses, so echo the caller's origin instead.
	if cfg.AllowCredentials && slices.Contains(cfg.AllowedOrigins, "*") {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(string) bool { return true }
	}
	return cors.New(opts).Handler
}

// RateLimiter decides whether a client key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// RateLimit rejects clients over budget with 429. Limiter failures let the request through.
func RateLimit(limiter RateLimiter, errs *apperrors.ErrorHandler, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			decision, err := limiter.Allow(r.Context(), key)
			if err != nil {
				metrics.RateLimited.WithLabelValues("error").Inc()
				log.Warn("rate limiter unavailable, allowing request", map[string]interface{}{
					"requestId": RequestIDFromContext(r.Context()),
					"client":    key,
					"error":     err.Error(),
				})
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				metrics.RateLimited.WithLabelValues("rejected").Inc()
				errs.WriteError(w, r, apperrors.NewRateLimitedError(decision.RetryAfter))
				return
			}
			metrics.RateLimited.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey is the caller's address without the port. Forwarding headers are not trusted.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
