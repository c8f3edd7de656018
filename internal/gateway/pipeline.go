// Package gateway runs every sensitive request through one ordered chain of
// guards and reduces the outcome to a single Verdict.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// DefaultMaxBodyBytes bounds the request body the pipeline will parse
const DefaultMaxBodyBytes int64 = 1 << 20

// IPGuard reports blocked client addresses
type IPGuard interface {
	IsBlocked(ctx context.Context, ip string) (bool, error)
}

// RateLimiter counts a request against a named policy
type RateLimiter interface {
	Allow(ctx context.Context, identifier, policy string) (models.RateLimitResult, error)
}

// SessionValidator resolves and refreshes sessions
type SessionValidator interface {
	Validate(ctx context.Context, id string) (*models.SessionRecord, error)
}

// CSRFValidator checks CSRF tokens
type CSRFValidator interface {
	Validate(ctx context.Context, token string) (bool, error)
}

// AuditRecorder persists audit events
type AuditRecorder interface {
	Record(ctx context.Context, event *models.AuditEvent) error
}

// Guards bundles the components the pipeline consults
type Guards struct {
	IPs      IPGuard
	Limiter  RateLimiter
	Sessions SessionValidator
	CSRF     CSRFValidator
	Audit    AuditRecorder
}

// Pipeline is the request validation orchestrator. It is safe for concurrent
// use; all shared state lives behind the guards.
type Pipeline struct {
	guards       Guards
	resolver     *pkghttp.ClientIPResolver
	sanitizer    *Sanitizer
	schemas      *SchemaValidator
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewPipeline creates a new Pipeline. A nil resolver trusts no proxies.
func NewPipeline(guards Guards, resolver *pkghttp.ClientIPResolver, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		guards:       guards,
		resolver:     resolver,
		sanitizer:    NewSanitizer(),
		schemas:      NewSchemaValidator(),
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       logger,
	}
}

// WithMaxBodyBytes overrides the body size limit
func (p *Pipeline) WithMaxBodyBytes(n int64) *Pipeline {
	if n > 0 {
		p.maxBodyBytes = n
	}
	return p
}

// Validate runs r through the guards in order and stops at the first
// failure:
//
//  1. blocked IP            -> access_denied
//  2. rate limit            -> rate_limited
//  3. bot user agent        -> bot_denied (auth routes only)
//  4. session               -> unauthenticated
//  5. CSRF token            -> invalid_csrf
//  6. body schema           -> validation_failed
//  7. sanitize string leaves
//
// Unexpected guard errors and panics yield internal_error. Every denial is
// audited.
func (p *Pipeline) Validate(r *http.Request, policy Policy) (verdict Verdict) {
	ctx := r.Context()
	verdict = Verdict{
		ClientIP:  p.resolver.ClientIP(r),
		UserAgent: pkghttp.UserAgent(r),
	}

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.ErrorContext(ctx, "panic in request pipeline",
				slog.Any("panic", rec),
				slog.String("path", r.URL.Path),
				slog.String("stack", string(debug.Stack())))
			verdict = p.deny(r, policy, verdict, ReasonInternalError)
		}
	}()

	reason, err := p.run(r, policy, &verdict)
	if err != nil {
		p.logger.ErrorContext(ctx, "request pipeline error",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		return p.deny(r, policy, verdict, ReasonInternalError)
	}
	if reason != "" {
		return p.deny(r, policy, verdict, reason)
	}

	verdict.Success = true
	return verdict
}

func (p *Pipeline) run(r *http.Request, policy Policy, v *Verdict) (Reason, error) {
	ctx := r.Context()

	blocked, err := p.guards.IPs.IsBlocked(ctx, v.ClientIP)
	if err != nil {
		return "", fmt.Errorf("ip check: %w", err)
	}
	if blocked {
		return ReasonAccessDenied, nil
	}

	if policy.RateLimitPolicy != "" {
		result, err := p.guards.Limiter.Allow(ctx, v.ClientIP, policy.RateLimitPolicy)
		if err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
		v.RateLimit = &result
		if !result.Permitted {
			return ReasonRateLimited, nil
		}
	}

	if (policy.RequireAuth || policy.RateLimitPolicy == models.PolicyAuth) && auth.LooksLikeBot(v.UserAgent) {
		return ReasonBotDenied, nil
	}

	sessionID, source := auth.SessionIDFromRequest(r)
	if policy.RequireAuth {
		if sessionID == "" {
			return ReasonUnauthenticated, nil
		}
		session, err := p.guards.Sessions.Validate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, models.ErrSessionNotFound) {
				return ReasonUnauthenticated, nil
			}
			return "", fmt.Errorf("session: %w", err)
		}
		v.Session = session
		v.SessionSource = source
	}

	// Bearer-token API calls cannot be forged cross-site
	if policy.RequireCSRF && source != auth.SessionSourceHeader {
		token := r.Header.Get(auth.CSRFHeaderName)
		if token == "" {
			return ReasonInvalidCSRF, nil
		}
		ok, err := p.guards.CSRF.Validate(ctx, token)
		if err != nil {
			return "", fmt.Errorf("csrf: %w", err)
		}
		if !ok {
			return ReasonInvalidCSRF, nil
		}
	}

	if policy.Schema == nil && !policy.Sanitize {
		return "", nil
	}
	return p.inspectBody(r, policy, v)
}

func (p *Pipeline) inspectBody(r *http.Request, policy Policy, v *Verdict) (Reason, error) {
	body, tooLarge, err := p.readBody(r)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if tooLarge {
		v.Fields = []FieldError{{Field: "body", Message: fmt.Sprintf("must not exceed %d bytes", p.maxBodyBytes)}}
		return ReasonValidationFailed, nil
	}

	if len(body) == 0 {
		if policy.Schema != nil {
			v.Fields = []FieldError{{Field: "body", Message: "this field is required"}}
			return ReasonValidationFailed, nil
		}
		v.Data = Null()
		return "", nil
	}

	data, err := ParseJSON(body)
	if err != nil {
		v.Fields = []FieldError{{Field: "body", Message: "must be valid JSON"}}
		return ReasonValidationFailed, nil
	}

	if policy.Schema != nil {
		input := policy.Schema()
		fields, err := p.schemas.Decode(body, input)
		if err != nil {
			return "", err
		}
		if len(fields) > 0 {
			v.Fields = fields
			return ReasonValidationFailed, nil
		}
		v.Input = input
	}

	if policy.Sanitize {
		data = p.sanitizer.Value(data)
		if policy.Schema != nil {
			// Markup removal can empty a required field
			cleaned, err := json.Marshal(data)
			if err != nil {
				return "", fmt.Errorf("encode sanitized body: %w", err)
			}
			input := policy.Schema()
			fields, err := p.schemas.Decode(cleaned, input)
			if err != nil {
				return "", err
			}
			if len(fields) > 0 {
				v.Fields = fields
				return ReasonValidationFailed, nil
			}
			v.Input = input
		}
	}

	v.Data = data
	return "", nil
}

func (p *Pipeline) readBody(r *http.Request) ([]byte, bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, p.maxBodyBytes+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > p.maxBodyBytes {
		return nil, true, nil
	}
	return body, false, nil
}

func (p *Pipeline) deny(r *http.Request, policy Policy, v Verdict, reason Reason) Verdict {
	v.Success = false
	v.Error = reason
	if reason != ReasonValidationFailed {
		v.Fields = nil
	}
	v.Data = Value{}
	v.Input = nil

	p.logger.WarnContext(r.Context(), "request denied",
		slog.String("reason", string(reason)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("ip", v.ClientIP))

	p.recordDenial(r, policy, v)
	return v
}

// recordDenial is best effort; an audit failure never changes the verdict.
func (p *Pipeline) recordDenial(r *http.Request, policy Policy, v Verdict) {
	ctx := r.Context()
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.ErrorContext(ctx, "panic while auditing denial", slog.Any("panic", rec))
		}
	}()

	if p.guards.Audit == nil {
		return
	}

	event := &models.AuditEvent{
		Action:    models.AuditActionRequestDenied,
		Resource:  models.AuditResourceRequest,
		IPAddress: v.ClientIP,
		UserAgent: v.UserAgent,
		Success:   false,
		Details:   models.NewDenialMetadata(string(v.Error), r.Method, r.URL.Path, policy.RateLimitPolicy),
	}
	if v.Session != nil {
		event.UserID = v.Session.UserID
	}

	// The request context may already be cancelled by the time we get here
	if err := p.guards.Audit.Record(context.WithoutCancel(ctx), event); err != nil {
		p.logger.WarnContext(ctx, "failed to audit denied request", slog.Any("error", err))
	}
}
