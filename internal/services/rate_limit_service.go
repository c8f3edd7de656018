package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/store"
)

const rateLimitKeyPrefix = "rate_limit:"

// RateLimitService implements fixed-window rate limiting per
// (policy, identifier) pair
type RateLimitService struct {
	store    store.Store
	policies config.Policies
	logger   *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(s store.Store, policies config.Policies, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:    s,
		policies: policies,
		logger:   logger,
	}
}

// Allow counts one request for identifier under the named policy.
//
// A request is denied without being counted once the window already holds
// Limit requests. Otherwise the counter is incremented atomically; if racing
// requests pushed it past the limit the late ones are denied too, so the
// permitted count never exceeds Limit.
//
// If the store is unreachable the request is permitted (fail open) and the
// result is marked Degraded.
func (s *RateLimitService) Allow(ctx context.Context, identifier, policyName string) (models.RateLimitResult, error) {
	policy, ok := s.policies.Lookup(policyName)
	if !ok {
		return models.RateLimitResult{}, fmt.Errorf("%w: %q", models.ErrUnknownPolicy, policyName)
	}

	key := rateLimitKeyPrefix + policy.Name + ":" + identifier
	now := time.Now()

	current, err := s.currentCount(ctx, key)
	if err != nil {
		return s.failOpen(ctx, policy, identifier, err)
	}

	if current >= int64(policy.Limit) {
		ttl, err := s.store.TTL(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Window lapsed between the two reads
				ttl = policy.Window
			} else {
				return s.failOpen(ctx, policy, identifier, err)
			}
		}
		s.logger.WarnContext(ctx, "rate limit exceeded",
			slog.String("policy", policy.Name),
			slog.String("identifier", identifier),
			slog.Int64("count", current))
		return models.RateLimitResult{
			Permitted: false,
			Limit:     policy.Limit,
			Remaining: 0,
			ResetAt:   now.Add(ttl),
		}, nil
	}

	count, ttl, err := s.store.IncrWindow(ctx, key, policy.Window)
	if err != nil {
		return s.failOpen(ctx, policy, identifier, err)
	}

	result := models.RateLimitResult{
		Permitted: count <= int64(policy.Limit),
		Limit:     policy.Limit,
		Remaining: max(policy.Limit-int(count), 0),
		ResetAt:   now.Add(ttl),
	}
	if !result.Permitted {
		s.logger.WarnContext(ctx, "rate limit exceeded by concurrent requests",
			slog.String("policy", policy.Name),
			slog.String("identifier", identifier),
			slog.Int64("count", count))
	}
	return result, nil
}

// Policy returns the configured policy by name
func (s *RateLimitService) Policy(name string) (models.RateLimitPolicy, bool) {
	return s.policies.Lookup(name)
}

func (s *RateLimitService) currentCount(ctx context.Context, key string) (int64, error) {
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value %q: %w", raw, err)
	}
	return count, nil
}

// failOpen permits the request when the limiter cannot consult the store.
// Availability wins over strict enforcement for this component only.
func (s *RateLimitService) failOpen(ctx context.Context, policy models.RateLimitPolicy, identifier string, err error) (models.RateLimitResult, error) {
	if !errors.Is(err, store.ErrUnavailable) {
		return models.RateLimitResult{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	s.logger.WarnContext(ctx, "rate limiter store unavailable, failing open",
		slog.String("policy", policy.Name),
		slog.String("identifier", identifier),
		slog.Any("error", err))
	return models.RateLimitResult{
		Permitted: true,
		Limit:     policy.Limit,
		Remaining: policy.Limit,
		Degraded:  true,
	}, nil
}
