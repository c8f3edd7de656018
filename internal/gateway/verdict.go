package gateway

import (
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// Reason is the machine-readable cause of a denial
type Reason string

const (
	ReasonAccessDenied     Reason = "access_denied"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonBotDenied        Reason = "bot_denied"
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonInvalidCSRF      Reason = "invalid_csrf"
	ReasonValidationFailed Reason = "validation_failed"
	ReasonInternalError    Reason = "internal_error"
)

// HTTPStatus maps the reason to the response status code
func (r Reason) HTTPStatus() int {
	switch r {
	case ReasonAccessDenied, ReasonBotDenied, ReasonInvalidCSRF:
		return http.StatusForbidden
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonUnauthenticated:
		return http.StatusUnauthorized
	case ReasonValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message is the short client-facing description of the reason
func (r Reason) Message() string {
	switch r {
	case ReasonAccessDenied:
		return "access denied"
	case ReasonRateLimited:
		return "too many requests, try again later"
	case ReasonBotDenied:
		return "automated clients are not allowed"
	case ReasonUnauthenticated:
		return "authentication required"
	case ReasonInvalidCSRF:
		return "invalid or missing CSRF token"
	case ReasonValidationFailed:
		return "request validation failed"
	default:
		return "internal server error"
	}
}

// Policy declares which guards a route needs
type Policy struct {
	RequireAuth     bool
	RequireCSRF     bool
	RateLimitPolicy string
	Sanitize        bool

	// Schema returns a fresh pointer to the struct the JSON body is decoded
	// into and validated against. Nil means the body is not inspected
	// unless Sanitize is set.
	Schema func() any
}

// FieldError describes one invalid field of the request body
type FieldError = pkghttp.FieldError

// Verdict is the single outcome of running a request through the pipeline.
// Handlers read everything they need from it.
type Verdict struct {
	Success bool
	Error   Reason
	Fields  []FieldError

	// Data is the parsed (and, if requested, sanitized) body.
	Data Value
	// Input is the Schema instance populated from Data.
	Input any

	Session       *models.SessionRecord
	SessionSource auth.SessionSource
	RateLimit     *models.RateLimitResult

	ClientIP  string
	UserAgent string
}

// Denied reports whether the request must be rejected
func (v Verdict) Denied() bool {
	return !v.Success
}
