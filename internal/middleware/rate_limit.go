package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// FloodLimitConfig holds the in-process flood limit configuration
type FloodLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultFloodLimit returns the flood limit for public token-issuing endpoints
// (20 requests per minute per IP)
func DefaultFloodLimit() FloodLimitConfig {
	return FloodLimitConfig{
		Requests: 20,
		Window:   time.Minute,
	}
}

// FloodLimitByIP creates a per-instance limiter keyed by client IP. It sits in
// front of the shared limiter and sheds bursts without touching the store.
func FloodLimitByIP(config FloodLimitConfig, resolver *pkghttp.ClientIPResolver) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return resolver.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "too many requests, try again later")
		}),
	)
}
