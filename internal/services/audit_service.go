package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/store"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
	"github.com/google/uuid"
)

const (
	auditKeyPrefix      = "audit:"
	auditDailyKeyPrefix = "audit_daily:"

	defaultAuditListLimit = 100
	maxAuditListLimit     = 1000
)

// AuditService handles audit logging with dual-write pattern (slog + store)
type AuditService struct {
	store     store.Store
	retention time.Duration
	audit     *pkglogger.AuditLogger
	logger    *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(s store.Store, retention time.Duration, logger *slog.Logger) *AuditService {
	return &AuditService{
		store:     s,
		retention: retention,
		audit:     pkglogger.NewAuditLogger(logger),
		logger:    logger,
	}
}

// Record assigns an id and timestamp to event and persists it under
// audit:<id> and in the audit_daily:<day> list in one transaction.
func (s *AuditService) Record(ctx context.Context, event *models.AuditEvent) error {
	if event == nil || event.Action == "" {
		return models.ErrInvalidAuditRecord
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()

	// Dual-write: immediate slog output
	s.audit.LogEvent(ctx, toLogEvent(event))

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	dayKey := auditDailyKeyPrefix + event.Day()
	err = s.store.Tx(ctx, func(tx store.Tx) {
		tx.SetEx(auditKeyPrefix+event.ID, string(data), s.retention)
		tx.LPush(dayKey, event.ID)
		tx.Expire(dayKey, s.retention)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit event",
			slog.String("audit_id", event.ID),
			slog.String("action", event.Action),
			slog.Any("error", err))
		return fmt.Errorf("failed to persist audit event: %w", err)
	}

	return nil
}

// Get returns a single audit event by id
func (s *AuditService) Get(ctx context.Context, id string) (*models.AuditEvent, error) {
	raw, err := s.store.Get(ctx, auditKeyPrefix+id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}

	var event models.AuditEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return nil, fmt.Errorf("failed to decode audit event: %w", err)
	}
	return &event, nil
}

// ListByDay returns up to limit events recorded on day (YYYY-MM-DD, UTC),
// newest first. Ids whose record has already expired are skipped.
func (s *AuditService) ListByDay(ctx context.Context, day string, limit int) ([]*models.AuditEvent, error) {
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return nil, fmt.Errorf("%w: invalid day %q", models.ErrBadRequest, day)
	}
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	if limit > maxAuditListLimit {
		limit = maxAuditListLimit
	}

	ids, err := s.store.LRange(ctx, auditDailyKeyPrefix+day, 0, int64(limit-1))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []*models.AuditEvent{}, nil
		}
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}

	events := make([]*models.AuditEvent, 0, len(ids))
	for _, id := range ids {
		event, err := s.Get(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func toLogEvent(event *models.AuditEvent) pkglogger.AuditEvent {
	logEvent := pkglogger.AuditEvent{
		ID:        event.ID,
		Action:    event.Action,
		Resource:  event.Resource,
		UserID:    event.UserID,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Success:   event.Success,
		Timestamp: event.Timestamp,
		Details:   event.Details,
	}
	if event.ResourceID != nil {
		logEvent.ResourceID = *event.ResourceID
	}
	return logEvent
}
