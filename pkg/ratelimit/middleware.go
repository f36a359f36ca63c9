package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/auth"
)

// retryAfterSeconds is advertised on every 429. Buckets refill continuously,
// so this is an upper bound rather than an exact wait.
const retryAfterSeconds = 60

var exceededMessage = "Rate limit exceeded. Try again in " + strconv.Itoa(retryAfterSeconds) + " seconds."

// KeyFunc derives the rate limit key of a request. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by the originating client address. The first
// X-Forwarded-For entry is used when present; deployments must sit behind a
// proxy that overwrites the header.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return "ip:" + xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// ProviderKey keys requests by the authenticated provider. It must run after
// the auth middleware; unauthenticated requests fall back to the client IP.
func ProviderKey(r *http.Request) string {
	if p, ok := auth.GetProvider(r.Context()); ok {
		return "provider:" + p.ID
	}
	return ClientIP(r)
}

// Middleware returns middleware enforcing l on the requests it wraps. A nil
// limiter disables limiting.
func Middleware(l *Limiter, keyFn KeyFunc, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if l == nil {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" || l.Allow(key) {
				next(w, r)
				return
			}

			logger.Debug("Rate limit exceeded",
				zap.String("key", key),
				zap.String("path", r.URL.Path))

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Burst()))
			w.WriteHeader(http.StatusTooManyRequests)
			if err := json.NewEncoder(w).Encode(map[string]string{"error": exceededMessage}); err != nil {
				logger.Error("Failed to write rate limit response", zap.Error(err))
			}
		}
	}
}
