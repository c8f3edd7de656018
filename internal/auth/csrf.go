package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/store"
)

const csrfKeyPrefix = "csrf:"

// CSRFTokenManager issues and checks CSRF tokens kept in the shared store.
// A token is valid while its key exists; it is not consumed on use and is not
// bound to a session.
type CSRFTokenManager struct {
	store    store.Store
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewCSRFTokenManager creates a new CSRF token manager
func NewCSRFTokenManager(s store.Store, tokenTTL time.Duration, logger *slog.Logger) *CSRFTokenManager {
	return &CSRFTokenManager{
		store:    s,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// Issue creates a new token valid for the configured TTL
func (m *CSRFTokenManager) Issue(ctx context.Context) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}

	if err := m.store.SetEx(ctx, csrfKeyPrefix+token, "1", m.tokenTTL); err != nil {
		return "", fmt.Errorf("failed to store CSRF token: %w", err)
	}

	return token, nil
}

// Validate reports whether token was issued and has not expired.
// If the store cannot be reached the check fails open and logs a warning.
func (m *CSRFTokenManager) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" || len(token) != TokenBytes*2 {
		return false, nil
	}

	_, err := m.store.Get(ctx, csrfKeyPrefix+token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case errors.Is(err, store.ErrUnavailable):
		m.logger.WarnContext(ctx, "csrf store unavailable, failing open", slog.Any("error", err))
		return true, nil
	default:
		return false, fmt.Errorf("failed to check CSRF token: %w", err)
	}
}
