package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/gateway"
	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// withVerdict places an allow verdict (and its session) in the request context
func withVerdict(req *http.Request, verdict *gateway.Verdict) *http.Request {
	verdict.Success = true
	ctx := gateway.NewContext(req.Context(), verdict)
	if verdict.Session != nil {
		ctx = auth.WithSession(ctx, verdict.Session)
	}
	return req.WithContext(ctx)
}

// assertErrorResponse checks that response is a valid error response
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	CreateFunc     func(ctx context.Context, principal models.Principal) (*models.SessionRecord, error)
	DestroyFunc    func(ctx context.Context, id string) error
	DestroyAllFunc func(ctx context.Context, userID string) (int, error)
}

func (m *MockSessionService) Create(ctx context.Context, principal models.Principal) (*models.SessionRecord, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, principal)
	}
	now := time.Now().UTC()
	return &models.SessionRecord{
		ID:           "session-id",
		UserID:       principal.UserID,
		Email:        principal.Email,
		Role:         models.RoleUser,
		LoginTime:    now,
		LastActivity: now,
		CSRFToken:    "csrf-token",
	}, nil
}

func (m *MockSessionService) Destroy(ctx context.Context, id string) error {
	if m.DestroyFunc != nil {
		return m.DestroyFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionService) DestroyAll(ctx context.Context, userID string) (int, error) {
	if m.DestroyAllFunc != nil {
		return m.DestroyAllFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockSessionService) TTL() time.Duration { return 24 * time.Hour }

// MockCSRFIssuer implements CSRFIssuerInterface for testing
type MockCSRFIssuer struct {
	Token string
	Err   error
}

func (m *MockCSRFIssuer) Issue(ctx context.Context) (string, error) {
	return m.Token, m.Err
}

// MockAudit records events in memory
type MockAudit struct {
	mu          sync.Mutex
	Events      []*models.AuditEvent
	ListByDayFn func(ctx context.Context, day string, limit int) ([]*models.AuditEvent, error)
}

func (m *MockAudit) Record(ctx context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockAudit) ListByDay(ctx context.Context, day string, limit int) ([]*models.AuditEvent, error) {
	if m.ListByDayFn != nil {
		return m.ListByDayFn(ctx, day, limit)
	}
	return []*models.AuditEvent{}, nil
}

func (m *MockAudit) last() *models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Events) == 0 {
		return nil
	}
	return m.Events[len(m.Events)-1]
}

// MockIPBlocker implements IPBlockerInterface for testing
type MockIPBlocker struct {
	BlockFunc func(ctx context.Context, ip string, duration time.Duration) error
}

func (m *MockIPBlocker) Block(ctx context.Context, ip string, duration time.Duration) error {
	if m.BlockFunc != nil {
		return m.BlockFunc(ctx, ip, duration)
	}
	return nil
}
