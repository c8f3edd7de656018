package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/gateway"
	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// IPBlockerInterface defines the block-list contract
type IPBlockerInterface interface {
	Block(ctx context.Context, ip string, duration time.Duration) error
}

// AuditReaderInterface defines the audit read-back contract
type AuditReaderInterface interface {
	AuditRecorderInterface
	ListByDay(ctx context.Context, day string, limit int) ([]*models.AuditEvent, error)
}

// AdminHandler handles admin HTTP requests.
type AdminHandler struct {
	ips    IPBlockerInterface
	audit  AuditReaderInterface
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ips IPBlockerInterface, audit AuditReaderInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{ips: ips, audit: audit, logger: logger}
}

// BlockIPRequest blocks an address. A zero duration uses the configured default.
type BlockIPRequest struct {
	IP              string `json:"ip" validate:"required,ip"`
	DurationSeconds int    `json:"duration_seconds" validate:"gte=0,lte=31536000"`
	Reason          string `json:"reason" validate:"max=256"`
}

// BlockIPResponse confirms a block
type BlockIPResponse struct {
	IP              string `json:"ip"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// AuditListResponse is one day of audit events, newest first
type AuditListResponse struct {
	Date   string               `json:"date"`
	Count  int                  `json:"count"`
	Events []*models.AuditEvent `json:"events"`
}

// BlockIP handles POST /admin/blocked-ips
// @Summary Block an IP address
// @Security SessionCookie
// @Accept json
// @Param request body BlockIPRequest true "Block request"
// @Produce json
// @Success 201 {object} BlockIPResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /admin/blocked-ips [post]
func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	verdict := gateway.FromContext(r.Context())
	if verdict == nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	req, ok := verdict.Input.(*BlockIPRequest)
	if !ok {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := h.ips.Block(r.Context(), req.IP, duration); err != nil {
		if errors.Is(err, models.ErrInvalidIPAddress) {
			pkghttp.WriteBadRequest(w, "Invalid IP address")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to block ip", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Block list unavailable")
		return
	}

	event := &models.AuditEvent{
		Action:     models.AuditActionIPBlock,
		Resource:   models.AuditResourceIP,
		ResourceID: strPtr(req.IP),
		Success:    true,
		Details: models.AuditMetadata{
			"duration_seconds": req.DurationSeconds,
			"reason":           req.Reason,
		},
	}
	if session := auth.GetSessionFromContext(r); session != nil {
		event.UserID = session.UserID
	}
	recordAudit(r, h.audit, verdict, event)

	pkghttp.WriteJSON(w, http.StatusCreated, BlockIPResponse{IP: req.IP, DurationSeconds: req.DurationSeconds})
}

// ListAudit handles GET /admin/audit
// Accepts ?date=YYYY-MM-DD (UTC, default today) and ?limit=N (1–1000, default 100).
// @Summary List audit events for a day
// @Security SessionCookie
// @Produce json
// @Success 200 {object} AuditListResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /admin/audit [get]
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format(time.DateOnly)
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	events, err := h.audit.ListByDay(r.Context(), date, limit)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "date must be formatted as YYYY-MM-DD")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to list audit events", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Audit store unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AuditListResponse{
		Date:   date,
		Count:  len(events),
		Events: events,
	})
}
