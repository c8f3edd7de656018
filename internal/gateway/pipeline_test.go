package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/gateway"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/BradenHooton/gatekeeper/internal/store"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

type fixture struct {
	mr       *miniredis.Miniredis
	sessions *services.SessionService
	csrf     *auth.CSRFTokenManager
	ips      *services.IPReputationService
	pipeline *gateway.Pipeline
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newGuards(s store.Store) (gateway.Guards, *services.SessionService, *auth.CSRFTokenManager, *services.IPReputationService) {
	logger := testLogger()
	csrf := auth.NewCSRFTokenManager(s, time.Hour, logger)
	sessions := services.NewSessionService(s, csrf, 24*time.Hour, logger)
	ips := services.NewIPReputationService(s, 24*time.Hour, logger)
	return gateway.Guards{
		IPs:      ips,
		Limiter:  services.NewRateLimitService(s, config.DefaultPolicies(), logger),
		Sessions: sessions,
		CSRF:     csrf,
		Audit:    services.NewAuditService(s, 30*24*time.Hour, logger),
	}, sessions, csrf, ips
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	guards, sessions, csrf, ips := newGuards(store.NewRedisStore(rdb))
	resolver, err := pkghttp.NewClientIPResolver([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	return &fixture{
		mr:       mr,
		sessions: sessions,
		csrf:     csrf,
		ips:      ips,
		pipeline: gateway.NewPipeline(guards, resolver, testLogger()),
	}
}

func newRequest(method, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/resource", reader)
	req.RemoteAddr = "192.0.2.10:40000"
	req.Header.Set("User-Agent", browserUA)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func (f *fixture) login(t *testing.T) *models.SessionRecord {
	t.Helper()
	session, err := f.sessions.Create(context.Background(), models.Principal{UserID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)
	return session
}

func (f *fixture) auditedDenials(t *testing.T) []string {
	t.Helper()
	ids, err := f.mr.List("audit_daily:" + time.Now().UTC().Format(time.DateOnly))
	if err != nil {
		return nil
	}
	return ids
}

type profileRequest struct {
	Name  string `json:"name" validate:"required,max=50"`
	Email string `json:"email" validate:"required,email"`
	Bio   string `json:"bio" validate:"max=500"`
}

func profileSchema() any { return &profileRequest{} }

func TestPipeline_AllowsPlainRequest(t *testing.T) {
	f := newFixture(t)

	verdict := f.pipeline.Validate(newRequest(http.MethodGet, ""), gateway.Policy{RateLimitPolicy: models.PolicyAPI})

	require.True(t, verdict.Success)
	assert.Empty(t, verdict.Error)
	assert.Nil(t, verdict.Session)
	require.NotNil(t, verdict.RateLimit)
	assert.Equal(t, 99, verdict.RateLimit.Remaining)
	assert.Equal(t, "192.0.2.10", verdict.ClientIP)
	assert.Empty(t, f.auditedDenials(t))
}

func TestPipeline_BlockedIPIsDenied(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ips.Block(context.Background(), "192.0.2.10", 0))

	verdict := f.pipeline.Validate(newRequest(http.MethodGet, ""), gateway.Policy{RateLimitPolicy: models.PolicyAPI})

	assert.False(t, verdict.Success)
	assert.Equal(t, gateway.ReasonAccessDenied, verdict.Error)
	assert.Nil(t, verdict.RateLimit, "rate limiter must not run after a block")
	assert.Len(t, f.auditedDenials(t), 1)
}

func TestPipeline_BlockedIPBehindTrustedProxy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ips.Block(context.Background(), "203.0.113.5", 0))

	req := newRequest(http.MethodGet, "")
	req.RemoteAddr = "10.1.2.3:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")

	verdict := f.pipeline.Validate(req, gateway.Policy{})

	assert.Equal(t, gateway.ReasonAccessDenied, verdict.Error)
}

func TestPipeline_AuthPolicyRateLimit(t *testing.T) {
	f := newFixture(t)
	policy := gateway.Policy{RateLimitPolicy: models.PolicyAuth}

	for i := 0; i < 5; i++ {
		verdict := f.pipeline.Validate(newRequest(http.MethodPost, ""), policy)
		require.True(t, verdict.Success, "attempt %d", i+1)
	}

	verdict := f.pipeline.Validate(newRequest(http.MethodPost, ""), policy)
	assert.False(t, verdict.Success)
	assert.Equal(t, gateway.ReasonRateLimited, verdict.Error)
	require.NotNil(t, verdict.RateLimit)
	assert.False(t, verdict.RateLimit.Permitted)
	assert.Equal(t, http.StatusTooManyRequests, verdict.Error.HTTPStatus())
}

func TestPipeline_RateLimitIgnoresClientSuppliedForwardedFor(t *testing.T) {
	f := newFixture(t)
	policy := gateway.Policy{RateLimitPolicy: models.PolicyAuth}

	permitted := 0
	for i := 0; i < 20; i++ {
		req := newRequest(http.MethodPost, "")
		req.RemoteAddr = "10.0.0.5:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d, 203.0.113.7", i+1))

		verdict := f.pipeline.Validate(req, policy)
		assert.Equal(t, "203.0.113.7", verdict.ClientIP)
		if verdict.Success {
			permitted++
		}
	}

	assert.Equal(t, 5, permitted)
}

func TestPipeline_BlockIgnoresClientSuppliedForwardedFor(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ips.Block(context.Background(), "203.0.113.7", 0))

	req := newRequest(http.MethodGet, "")
	req.RemoteAddr = "10.0.0.5:5000"
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 203.0.113.7")

	verdict := f.pipeline.Validate(req, gateway.Policy{})

	assert.Equal(t, gateway.ReasonAccessDenied, verdict.Error)
}

func TestPipeline_BotDetection(t *testing.T) {
	f := newFixture(t)

	req := newRequest(http.MethodPost, "")
	req.Header.Set("User-Agent", "curl/8.5.0")
	verdict := f.pipeline.Validate(req, gateway.Policy{RateLimitPolicy: models.PolicyAuth})
	assert.Equal(t, gateway.ReasonBotDenied, verdict.Error)

	req = newRequest(http.MethodGet, "")
	req.Header.Del("User-Agent")
	verdict = f.pipeline.Validate(req, gateway.Policy{RequireAuth: true})
	assert.Equal(t, gateway.ReasonBotDenied, verdict.Error)

	// Public endpoints accept API clients
	req = newRequest(http.MethodGet, "")
	req.Header.Set("User-Agent", "python-requests/2.32")
	verdict = f.pipeline.Validate(req, gateway.Policy{RateLimitPolicy: models.PolicyAPI})
	assert.True(t, verdict.Success)
}

func TestPipeline_UnauthenticatedBeforeSchema(t *testing.T) {
	f := newFixture(t)

	verdict := f.pipeline.Validate(newRequest(http.MethodPost, `{not json`), gateway.Policy{
		RequireAuth: true,
		Schema:      profileSchema,
	})

	assert.Equal(t, gateway.ReasonUnauthenticated, verdict.Error)
	assert.Empty(t, verdict.Fields)
	assert.Equal(t, http.StatusUnauthorized, verdict.Error.HTTPStatus())
}

func TestPipeline_UnknownSessionIsUnauthenticated(t *testing.T) {
	f := newFixture(t)
	req := newRequest(http.MethodGet, "")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: strings.Repeat("a", 64)})

	verdict := f.pipeline.Validate(req, gateway.Policy{RequireAuth: true})

	assert.Equal(t, gateway.ReasonUnauthenticated, verdict.Error)
}

func TestPipeline_ValidSessionCookie(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	req := newRequest(http.MethodGet, "")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session.ID})

	verdict := f.pipeline.Validate(req, gateway.Policy{RequireAuth: true, RateLimitPolicy: models.PolicyAPI})

	require.True(t, verdict.Success)
	require.NotNil(t, verdict.Session)
	assert.Equal(t, "u1", verdict.Session.UserID)
	assert.Equal(t, auth.SessionSourceCookie, verdict.SessionSource)
}

func TestPipeline_CSRFRequiredForCookieSessions(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)
	policy := gateway.Policy{RequireAuth: true, RequireCSRF: true}

	req := newRequest(http.MethodDelete, "")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session.ID})
	verdict := f.pipeline.Validate(req, policy)
	assert.Equal(t, gateway.ReasonInvalidCSRF, verdict.Error)

	req = newRequest(http.MethodDelete, "")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session.ID})
	req.Header.Set(auth.CSRFHeaderName, strings.Repeat("0", 64))
	verdict = f.pipeline.Validate(req, policy)
	assert.Equal(t, gateway.ReasonInvalidCSRF, verdict.Error)

	req = newRequest(http.MethodDelete, "")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session.ID})
	req.Header.Set(auth.CSRFHeaderName, session.CSRFToken)
	verdict = f.pipeline.Validate(req, policy)
	assert.True(t, verdict.Success)
}

func TestPipeline_CSRFSkippedForBearerSessions(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	req := newRequest(http.MethodDelete, "")
	req.Header.Set("Authorization", "Bearer "+session.ID)

	verdict := f.pipeline.Validate(req, gateway.Policy{RequireAuth: true, RequireCSRF: true})

	require.True(t, verdict.Success)
	assert.Equal(t, auth.SessionSourceHeader, verdict.SessionSource)
}

func TestPipeline_CSRFWithoutSession(t *testing.T) {
	f := newFixture(t)
	token, err := f.csrf.Issue(context.Background())
	require.NoError(t, err)

	req := newRequest(http.MethodPost, "")
	verdict := f.pipeline.Validate(req, gateway.Policy{RequireCSRF: true})
	assert.Equal(t, gateway.ReasonInvalidCSRF, verdict.Error)

	req = newRequest(http.MethodPost, "")
	req.Header.Set(auth.CSRFHeaderName, token)
	verdict = f.pipeline.Validate(req, gateway.Policy{RequireCSRF: true})
	assert.True(t, verdict.Success)

	f.mr.FastForward(time.Hour)

	req = newRequest(http.MethodPost, "")
	req.Header.Set(auth.CSRFHeaderName, token)
	verdict = f.pipeline.Validate(req, gateway.Policy{RequireCSRF: true})
	assert.Equal(t, gateway.ReasonInvalidCSRF, verdict.Error)
}

func TestPipeline_SchemaValidationFailure(t *testing.T) {
	f := newFixture(t)

	verdict := f.pipeline.Validate(newRequest(http.MethodPost, `{"name":"","email":"nope"}`), gateway.Policy{Schema: profileSchema})

	assert.Equal(t, gateway.ReasonValidationFailed, verdict.Error)
	assert.ElementsMatch(t, []gateway.FieldError{
		{Field: "name", Message: "this field is required"},
		{Field: "email", Message: "must be a valid email address"},
	}, verdict.Fields)
	assert.Nil(t, verdict.Input)
}

func TestPipeline_SchemaRejectsMalformedBodies(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"invalid json", `{"name":`, "body"},
		{"wrong type", `{"name":42,"email":"a@example.com"}`, "name"},
		{"empty body", "", "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := f.pipeline.Validate(newRequest(http.MethodPost, tt.body), gateway.Policy{Schema: profileSchema})

			assert.Equal(t, gateway.ReasonValidationFailed, verdict.Error)
			require.NotEmpty(t, verdict.Fields)
			assert.Equal(t, tt.field, verdict.Fields[0].Field)
		})
	}
}

func TestPipeline_BodyTooLarge(t *testing.T) {
	f := newFixture(t)
	f.pipeline.WithMaxBodyBytes(16)

	verdict := f.pipeline.Validate(newRequest(http.MethodPost, `{"bio":"`+strings.Repeat("x", 64)+`"}`), gateway.Policy{Sanitize: true})

	assert.Equal(t, gateway.ReasonValidationFailed, verdict.Error)
	require.Len(t, verdict.Fields, 1)
	assert.Equal(t, "body", verdict.Fields[0].Field)
}

func TestPipeline_SanitizesScriptTags(t *testing.T) {
	f := newFixture(t)

	verdict := f.pipeline.Validate(newRequest(http.MethodPost, `{"bio":"<script>alert(1)</script>hello"}`), gateway.Policy{Sanitize: true})

	require.True(t, verdict.Success)
	bio, ok := verdict.Data.Field("bio")
	require.True(t, ok)
	s, ok := bio.Str()
	require.True(t, ok)
	assert.Equal(t, "hello", s)
}

func TestPipeline_SanitizesNestedValues(t *testing.T) {
	f := newFixture(t)
	body := `{"tags":["<b>go</b>", 7, true, null],"profile":{"bio":"<img src=x onerror=alert(1)>hi","age":30}}`

	verdict := f.pipeline.Validate(newRequest(http.MethodPost, body), gateway.Policy{Sanitize: true})

	require.True(t, verdict.Success)
	out, err := verdict.Data.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"tags":["go",7,true,null],"profile":{"bio":"hi","age":30}}`, string(out))
}

func TestPipeline_SanitizedSchemaInput(t *testing.T) {
	f := newFixture(t)
	policy := gateway.Policy{Schema: profileSchema, Sanitize: true}

	verdict := f.pipeline.Validate(newRequest(http.MethodPost,
		`{"name":"Ada","email":"ada@example.com","bio":"<script>alert(1)</script>hello"}`), policy)

	require.True(t, verdict.Success)
	input, ok := verdict.Input.(*profileRequest)
	require.True(t, ok)
	assert.Equal(t, "hello", input.Bio)
	assert.Equal(t, "Ada", input.Name)

	// A field that is only markup is empty once sanitized
	verdict = f.pipeline.Validate(newRequest(http.MethodPost,
		`{"name":"<b></b>","email":"ada@example.com"}`), policy)
	assert.Equal(t, gateway.ReasonValidationFailed, verdict.Error)
	require.Len(t, verdict.Fields, 1)
	assert.Equal(t, "name", verdict.Fields[0].Field)
}

func TestPipeline_SanitizeKeepsOrdinaryText(t *testing.T) {
	f := newFixture(t)
	policy := gateway.Policy{Schema: profileSchema, Sanitize: true}

	verdict := f.pipeline.Validate(newRequest(http.MethodPost,
		`{"name":"Tom & Jerry","email":"o'brien@example.com","bio":"5 > 3, isn't it?"}`), policy)

	require.True(t, verdict.Success, "fields: %v", verdict.Fields)
	input, ok := verdict.Input.(*profileRequest)
	require.True(t, ok)
	assert.Equal(t, "Tom & Jerry", input.Name)
	assert.Equal(t, "o'brien@example.com", input.Email)
	assert.Equal(t, "5 > 3, isn't it?", input.Bio)

	out, err := verdict.Data.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Tom & Jerry","email":"o'brien@example.com","bio":"5 > 3, isn't it?"}`, string(out))
}

func TestPipeline_StoreOutage(t *testing.T) {
	guards, _, _, _ := newGuards(store.Unavailable{Reason: "redis down"})
	pipeline := gateway.NewPipeline(guards, nil, testLogger())

	verdict := pipeline.Validate(newRequest(http.MethodGet, ""), gateway.Policy{RateLimitPolicy: models.PolicyAPI})
	assert.True(t, verdict.Success, "rate limited endpoint must fail open")
	require.NotNil(t, verdict.RateLimit)
	assert.True(t, verdict.RateLimit.Degraded)

	req := newRequest(http.MethodGet, "")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: strings.Repeat("a", 64)})
	verdict = pipeline.Validate(req, gateway.Policy{RequireAuth: true, RateLimitPolicy: models.PolicyAPI})
	assert.Equal(t, gateway.ReasonUnauthenticated, verdict.Error, "sessions must fail closed")

	req = newRequest(http.MethodPost, "")
	req.Header.Set(auth.CSRFHeaderName, strings.Repeat("b", 64))
	verdict = pipeline.Validate(req, gateway.Policy{RequireCSRF: true})
	assert.True(t, verdict.Success, "csrf check must fail open")
}

type panickingIPGuard struct{}

func (panickingIPGuard) IsBlocked(context.Context, string) (bool, error) {
	panic("boom")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, string) (models.RateLimitResult, error) {
	return models.RateLimitResult{}, errors.New("unexpected reply")
}

func TestPipeline_GuardPanicBecomesInternalError(t *testing.T) {
	guards, _, _, _ := newGuards(store.Unavailable{})
	guards.IPs = panickingIPGuard{}
	pipeline := gateway.NewPipeline(guards, nil, testLogger())

	verdict := pipeline.Validate(newRequest(http.MethodGet, ""), gateway.Policy{})

	assert.False(t, verdict.Success)
	assert.Equal(t, gateway.ReasonInternalError, verdict.Error)
	assert.Equal(t, http.StatusInternalServerError, verdict.Error.HTTPStatus())
}

func TestPipeline_GuardErrorBecomesInternalError(t *testing.T) {
	guards, _, _, _ := newGuards(store.Unavailable{})
	guards.Limiter = failingLimiter{}
	pipeline := gateway.NewPipeline(guards, nil, testLogger())

	verdict := pipeline.Validate(newRequest(http.MethodGet, ""), gateway.Policy{RateLimitPolicy: models.PolicyAPI})

	assert.Equal(t, gateway.ReasonInternalError, verdict.Error)
}

func TestReason_HTTPStatus(t *testing.T) {
	tests := map[gateway.Reason]int{
		gateway.ReasonAccessDenied:     http.StatusForbidden,
		gateway.ReasonRateLimited:      http.StatusTooManyRequests,
		gateway.ReasonBotDenied:        http.StatusForbidden,
		gateway.ReasonUnauthenticated:  http.StatusUnauthorized,
		gateway.ReasonInvalidCSRF:      http.StatusForbidden,
		gateway.ReasonValidationFailed: http.StatusBadRequest,
		gateway.ReasonInternalError:    http.StatusInternalServerError,
	}
	for reason, status := range tests {
		assert.Equal(t, status, reason.HTTPStatus(), string(reason))
		assert.NotEmpty(t, reason.Message())
	}
}
