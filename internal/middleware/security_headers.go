package middleware

import (
	"net/http"
	"slices"
)

// SecurityHeadersConfig holds security headers configuration
type SecurityHeadersConfig struct {
	Env string
}

const (
	productionCSP = "default-src 'self'; " +
		"script-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data: https:; " +
		"font-src 'self'; " +
		"connect-src 'self'; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"

	// Allows hot reloading tools
	developmentCSP = "default-src 'self' http: https: ws:; " +
		"script-src 'self' 'unsafe-inline' 'unsafe-eval' http: https: ws:; " +
		"style-src 'self' 'unsafe-inline' http: https:; " +
		"img-src 'self' data: https: http:; " +
		"font-src 'self' data: http: https:; " +
		"connect-src 'self' http: https: ws: wss:; " +
		"frame-ancestors 'self'; " +
		"base-uri 'self'; " +
		"form-action 'self'"

	permissionsPolicy = "accelerometer=(), camera=(), geolocation=(), gyroscope=(), " +
		"magnetometer=(), microphone=(), payment=(), usb=()"
)

// StaticSecurityHeaders builds the fixed header set applied to every response
func StaticSecurityHeaders(config SecurityHeadersConfig) http.Header {
	csp := developmentCSP
	coep := "credentialless"
	if config.Env == "production" {
		csp = productionCSP
		coep = "require-corp"
	}

	h := http.Header{}
	h.Set("Content-Security-Policy", csp)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", permissionsPolicy)
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	h.Set("X-DNS-Prefetch-Control", "off")
	h.Set("Cross-Origin-Embedder-Policy", coep)
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	return h
}

// SecurityHeaders returns a middleware that adds the static security headers
// to all responses. The set is computed once.
func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	headers := StaticSecurityHeaders(config)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dst := w.Header()
			for name, values := range headers {
				dst[name] = slices.Clone(values)
			}
			next.ServeHTTP(w, r)
		})
	}
}
