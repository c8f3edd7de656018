package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/store"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

const (
	sessionKeyPrefix      = "session:"
	userSessionsKeyPrefix = "user_sessions:"
)

var errCorruptSession = errors.New("corrupt session record")

// CSRFIssuer issues CSRF tokens bound into new sessions
type CSRFIssuer interface {
	Issue(ctx context.Context) (string, error)
}

// SessionService owns the session lifecycle. Every session record has a
// sliding TTL; a per-user set of session ids (user_sessions:<id>) is written
// in the same transaction as the record so DestroyAll can find them.
//
// Unlike the rate limiter, Validate fails closed: when the store is
// unreachable the caller is treated as unauthenticated.
type SessionService struct {
	store  store.Store
	csrf   CSRFIssuer
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(s store.Store, csrf CSRFIssuer, ttl time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{
		store:  s,
		csrf:   csrf,
		ttl:    ttl,
		logger: logger,
	}
}

// TTL returns the idle timeout applied to sessions
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Create stores a new session for principal and returns it
func (s *SessionService) Create(ctx context.Context, principal models.Principal) (*models.SessionRecord, error) {
	if principal.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrBadRequest)
	}

	id, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}

	csrfToken, err := s.csrf.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session CSRF token: %w", err)
	}

	now := time.Now().UTC()
	record := &models.SessionRecord{
		ID:           id,
		UserID:       principal.UserID,
		Email:        principal.Email,
		Role:         principal.Role,
		LoginTime:    now,
		LastActivity: now,
		CSRFToken:    csrfToken,
	}
	if record.Role == "" {
		record.Role = models.RoleUser
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	indexKey := userSessionsKeyPrefix + record.UserID
	err = s.store.Tx(ctx, func(tx store.Tx) {
		tx.SetEx(sessionKeyPrefix+id, string(data), s.ttl)
		tx.SAdd(indexKey, id)
		tx.Expire(indexKey, s.ttl)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.InfoContext(ctx, "session created",
		slog.String("user_id", record.UserID),
		slog.String("email", pkglogger.MaskEmail(record.Email)),
		slog.String("session", pkglogger.TokenPrefix(id)))

	return record, nil
}

// Validate returns the session for id and renews its TTL. Missing, expired and
// concurrently destroyed sessions yield models.ErrSessionNotFound; when the
// store is down the error also matches store.ErrUnavailable. An unreadable
// record is an internal error.
func (s *SessionService) Validate(ctx context.Context, id string) (*models.SessionRecord, error) {
	if id == "" {
		return nil, models.ErrSessionNotFound
	}

	record, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			s.logger.WarnContext(ctx, "session store unavailable, failing closed", slog.Any("error", err))
			return nil, fmt.Errorf("%w: %w", models.ErrSessionNotFound, err)
		}
		return nil, err
	}

	record.LastActivity = time.Now().UTC()
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	// XX: a session destroyed since the read must stay destroyed
	renewed, err := s.store.SetExIfExists(ctx, sessionKeyPrefix+id, string(data), s.ttl)
	if err != nil {
		// The read succeeded, so the session is genuine; it just keeps its old expiry.
		s.logger.WarnContext(ctx, "failed to renew session",
			slog.String("session", pkglogger.TokenPrefix(id)),
			slog.Any("error", err))
		return record, nil
	}
	if !renewed {
		return nil, models.ErrSessionNotFound
	}

	// EXPIRE is a no-op once DestroyAll has removed the index
	if err := s.store.Expire(ctx, userSessionsKeyPrefix+record.UserID, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "failed to renew session index",
			slog.String("user_id", record.UserID),
			slog.Any("error", err))
	}

	return record, nil
}

// Destroy removes a session immediately. Destroying an unknown session is
// not an error.
func (s *SessionService) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	record, err := s.load(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrSessionNotFound):
		return nil
	case errors.Is(err, errCorruptSession):
		// Without a user id the index entry stays behind; DestroyAll tolerates that
		s.logger.WarnContext(ctx, "destroying unreadable session",
			slog.String("session", pkglogger.TokenPrefix(id)),
			slog.Any("error", err))
		if err := s.store.Del(ctx, sessionKeyPrefix+id); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	err = s.store.Tx(ctx, func(tx store.Tx) {
		tx.Del(sessionKeyPrefix + id)
		tx.SRem(userSessionsKeyPrefix+record.UserID, id)
	})
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	s.logger.InfoContext(ctx, "session destroyed",
		slog.String("user_id", record.UserID),
		slog.String("session", pkglogger.TokenPrefix(id)))
	return nil
}

// DestroyAll removes every session of userID, as required after a password
// change or reset. It returns the number of session ids that were indexed.
func (s *SessionService) DestroyAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", models.ErrBadRequest)
	}

	indexKey := userSessionsKeyPrefix + userID
	ids, err := s.store.SMembers(ctx, indexKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, indexKey)

	if err := s.store.Tx(ctx, func(tx store.Tx) { tx.Del(keys...) }); err != nil {
		return 0, fmt.Errorf("failed to destroy user sessions: %w", err)
	}

	s.logger.InfoContext(ctx, "all sessions destroyed",
		slog.String("user_id", userID),
		slog.Int("count", len(ids)))
	return len(ids), nil
}

func (s *SessionService) load(ctx context.Context, id string) (*models.SessionRecord, error) {
	raw, err := s.store.Get(ctx, sessionKeyPrefix+id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}

	var record models.SessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptSession, err)
	}
	return &record, nil
}
