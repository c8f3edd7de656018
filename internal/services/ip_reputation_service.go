package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/store"
)

const blockedIPKeyPrefix = "blocked_ip:"

// IPReputationService keeps the temporary IP block list. Entries only expire;
// there is no early unblock.
type IPReputationService struct {
	store           store.Store
	defaultDuration time.Duration
	logger          *slog.Logger
}

// NewIPReputationService creates a new IPReputationService
func NewIPReputationService(s store.Store, defaultDuration time.Duration, logger *slog.Logger) *IPReputationService {
	return &IPReputationService{
		store:           s,
		defaultDuration: defaultDuration,
		logger:          logger,
	}
}

// IsBlocked reports whether ip is on the block list. An unreachable store
// reports false and logs a warning.
func (s *IPReputationService) IsBlocked(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}
	// Same key form as Block
	if parsed := net.ParseIP(ip); parsed != nil {
		ip = parsed.String()
	}

	_, err := s.store.Get(ctx, blockedIPKeyPrefix+ip)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case errors.Is(err, store.ErrUnavailable):
		s.logger.WarnContext(ctx, "ip reputation store unavailable, failing open",
			slog.String("ip", ip),
			slog.Any("error", err))
		return false, nil
	default:
		return false, fmt.Errorf("failed to check blocked ip: %w", err)
	}
}

// Block adds ip to the block list for duration. A non-positive duration
// uses the configured default. Re-blocking an address resets its expiry.
func (s *IPReputationService) Block(ctx context.Context, ip string, duration time.Duration) error {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return fmt.Errorf("%w: %q", models.ErrInvalidIPAddress, ip)
	}
	if duration <= 0 {
		duration = s.defaultDuration
	}

	canonical := parsed.String()
	if err := s.store.SetEx(ctx, blockedIPKeyPrefix+canonical, "1", duration); err != nil {
		return fmt.Errorf("failed to block ip: %w", err)
	}

	s.logger.WarnContext(ctx, "ip blocked",
		slog.String("ip", canonical),
		slog.Duration("duration", duration))
	return nil
}
