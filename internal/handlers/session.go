package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/gateway"
	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

// SessionServiceInterface defines the session lifecycle contract
type SessionServiceInterface interface {
	Create(ctx context.Context, principal models.Principal) (*models.SessionRecord, error)
	Destroy(ctx context.Context, id string) error
	DestroyAll(ctx context.Context, userID string) (int, error)
	TTL() time.Duration
}

// CSRFIssuerInterface issues CSRF tokens
type CSRFIssuerInterface interface {
	Issue(ctx context.Context) (string, error)
}

// AuditRecorderInterface persists audit events
type AuditRecorderInterface interface {
	Record(ctx context.Context, event *models.AuditEvent) error
}

// SessionHandler handles session lifecycle HTTP requests
type SessionHandler struct {
	sessions SessionServiceInterface
	csrf     CSRFIssuerInterface
	audit    AuditRecorderInterface
	cookies  config.CookieConfig
	csrfTTL  time.Duration
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(
	sessions SessionServiceInterface,
	csrf CSRFIssuerInterface,
	audit AuditRecorderInterface,
	cookies config.CookieConfig,
	csrfTTL time.Duration,
	logger *slog.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		csrf:     csrf,
		audit:    audit,
		cookies:  cookies,
		csrfTTL:  csrfTTL,
		logger:   logger,
	}
}

// Request DTOs

// CreateSessionRequest is sent by the authentication service after it has
// verified the user's credentials
type CreateSessionRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Email  string `json:"email" validate:"omitempty,email,max=254"`
	Role   string `json:"role" validate:"omitempty,oneof=user admin"`
}

// Response DTOs

// SessionResponse describes a session. SessionID is only returned on create.
type SessionResponse struct {
	SessionID    string    `json:"session_id,omitempty"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
	Role         string    `json:"role"`
	LoginTime    time.Time `json:"login_time"`
	LastActivity time.Time `json:"last_activity"`
	CSRFToken    string    `json:"csrf_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CSRFTokenResponse carries a freshly issued CSRF token
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
	ExpiresIn int    `json:"expires_in"`
}

// RevokeResponse reports how many sessions were revoked
type RevokeResponse struct {
	Revoked int `json:"revoked"`
}

func (h *SessionHandler) toResponse(session *models.SessionRecord) SessionResponse {
	return SessionResponse{
		UserID:       session.UserID,
		Email:        session.Email,
		Role:         session.Role,
		LoginTime:    session.LoginTime,
		LastActivity: session.LastActivity,
		CSRFToken:    session.CSRFToken,
		ExpiresAt:    session.LastActivity.Add(h.sessions.TTL()),
	}
}

// Create opens a session for an authenticated principal
// @Summary Create session
// @Accept json
// @Param request body CreateSessionRequest true "Principal"
// @Produce json
// @Success 201 {object} SessionResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	verdict := gateway.FromContext(r.Context())
	if verdict == nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	req, ok := verdict.Input.(*CreateSessionRequest)
	if !ok {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	session, err := h.sessions.Create(r.Context(), models.Principal{
		UserID: req.UserID,
		Email:  req.Email,
		Role:   req.Role,
	})
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid principal")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to create session", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Session store unavailable")
		return
	}

	auth.SetSessionCookie(w, session.ID, h.sessions.TTL(), h.cookies)
	auth.SetCSRFTokenCookie(w, session.CSRFToken, h.csrfTTL, h.cookies)

	h.record(r, verdict, &models.AuditEvent{
		UserID:     session.UserID,
		Action:     models.AuditActionSessionCreate,
		Resource:   models.AuditResourceSession,
		ResourceID: strPtr(pkglogger.TokenPrefix(session.ID)),
		Success:    true,
		Details:    models.AuditMetadata{"role": session.Role},
	})

	resp := h.toResponse(session)
	resp.SessionID = session.ID
	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// Current returns the caller's session
// @Summary Current session
// @Security SessionCookie
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /sessions/current [get]
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteError(w, http.StatusUnauthorized, string(gateway.ReasonUnauthenticated), gateway.ReasonUnauthenticated.Message())
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.toResponse(session))
}

// Logout destroys the caller's session
// @Summary Logout
// @Security SessionCookie
// @Success 204
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /sessions/current [delete]
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteError(w, http.StatusUnauthorized, string(gateway.ReasonUnauthenticated), gateway.ReasonUnauthenticated.Message())
		return
	}

	if err := h.sessions.Destroy(r.Context(), session.ID); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to destroy session", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Session store unavailable")
		return
	}

	auth.ClearSessionCookies(w, h.cookies)

	h.record(r, gateway.FromContext(r.Context()), &models.AuditEvent{
		UserID:     session.UserID,
		Action:     models.AuditActionSessionDestroy,
		Resource:   models.AuditResourceSession,
		ResourceID: strPtr(pkglogger.TokenPrefix(session.ID)),
		Success:    true,
	})

	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll destroys every session of the caller, including the current one
// @Summary Logout from all devices
// @Security SessionCookie
// @Produce json
// @Success 200 {object} RevokeResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /sessions/revoke-all [post]
func (h *SessionHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteError(w, http.StatusUnauthorized, string(gateway.ReasonUnauthenticated), gateway.ReasonUnauthenticated.Message())
		return
	}

	h.revokeAll(w, r, session.UserID, "self")
}

// DestroyUserSessions is called by the authentication service after a
// password change or reset
// @Summary Revoke all sessions of a user
// @Security InternalToken
// @Param id path string true "User ID"
// @Produce json
// @Success 200 {object} RevokeResponse
// @Router /internal/users/{id}/sessions [delete]
func (h *SessionHandler) DestroyUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "User ID is required")
		return
	}

	h.revokeAll(w, r, userID, "internal")
}

func (h *SessionHandler) revokeAll(w http.ResponseWriter, r *http.Request, userID, initiator string) {
	count, err := h.sessions.DestroyAll(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to revoke sessions",
			slog.String("user_id", userID),
			slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Session store unavailable")
		return
	}

	h.record(r, gateway.FromContext(r.Context()), &models.AuditEvent{
		UserID:   userID,
		Action:   models.AuditActionSessionRevoke,
		Resource: models.AuditResourceSession,
		Success:  true,
		Details:  models.AuditMetadata{"count": count, "initiator": initiator},
	})

	if initiator == "self" {
		auth.ClearSessionCookies(w, h.cookies)
	}
	pkghttp.WriteJSON(w, http.StatusOK, RevokeResponse{Revoked: count})
}

// CSRFToken issues a CSRF token for clients that do not hold a session yet
// @Summary Issue CSRF token
// @Produce json
// @Success 200 {object} CSRFTokenResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /csrf-token [get]
func (h *SessionHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Issue(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue CSRF token", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "CSRF token store unavailable")
		return
	}

	auth.SetCSRFTokenCookie(w, token, h.csrfTTL, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, CSRFTokenResponse{
		CSRFToken: token,
		ExpiresIn: int(h.csrfTTL.Seconds()),
	})
}

// record fills in request metadata and persists event. Audit failures are
// logged by the audit service and never fail the request.
func (h *SessionHandler) record(r *http.Request, verdict *gateway.Verdict, event *models.AuditEvent) {
	recordAudit(r, h.audit, verdict, event)
}

func recordAudit(r *http.Request, recorder AuditRecorderInterface, verdict *gateway.Verdict, event *models.AuditEvent) {
	if verdict != nil {
		event.IPAddress = verdict.ClientIP
		event.UserAgent = verdict.UserAgent
	}
	_ = recorder.Record(context.WithoutCancel(r.Context()), event)
}

func strPtr(s string) *string {
	return &s
}
