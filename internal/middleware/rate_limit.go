package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/agora/internal/auth"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig is a fixed window limit.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultAuthRateLimit covers login, registration and reset requests.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 5, Window: time.Minute}
}

// DefaultCodeRateLimit covers endpoints that accept a one-time code.
func DefaultCodeRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

// DefaultUserRateLimit covers authenticated writes such as sends and transfers.
func DefaultUserRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 60, Window: time.Minute}
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "rate limit exceeded, try again later")
}

// RateLimitByIP limits requests per client IP.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// userKey buckets authenticated requests by user and falls back to the IP.
func userKey(r *http.Request) (string, error) {
	if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
		return "user:" + claims.UserID, nil
	}
	ip, err := httprate.KeyByRealIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

// RateLimitByUser limits requests per authenticated user. Use after auth.Authenticate.
func RateLimitByUser(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(userKey),
		httprate.WithLimitHandler(limitExceeded),
	)
}
