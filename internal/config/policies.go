package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// Policies is the rate limit table. It is built once by Load and only read
// afterwards.
type Policies map[string]models.RateLimitPolicy

// Lookup returns the named policy
func (p Policies) Lookup(name string) (models.RateLimitPolicy, bool) {
	policy, ok := p[name]
	return policy, ok
}

// DefaultPolicies returns the built-in rate limit table
func DefaultPolicies() Policies {
	return Policies{
		models.PolicyAuth:   {Name: models.PolicyAuth, Limit: 5, Window: 15 * time.Minute},
		models.PolicyAPI:    {Name: models.PolicyAPI, Limit: 100, Window: 15 * time.Minute},
		models.PolicyUpload: {Name: models.PolicyUpload, Limit: 10, Window: 60 * time.Minute},
		models.PolicySearch: {Name: models.PolicySearch, Limit: 50, Window: 15 * time.Minute},
	}
}

// loadPolicies applies RATE_LIMIT_<NAME>=<limit>/<window> overrides on top of
// the defaults. Overrides for unknown names add new policies.
func loadPolicies() (Policies, error) {
	policies := DefaultPolicies()

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "RATE_LIMIT_") || value == "" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, "RATE_LIMIT_"))
		policy, err := ParsePolicy(name, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		policies[name] = policy
	}

	return policies, nil
}

// ParsePolicy parses "<limit>/<window>", e.g. "5/15m".
func ParsePolicy(name, raw string) (models.RateLimitPolicy, error) {
	limitStr, windowStr, ok := strings.Cut(raw, "/")
	if !ok {
		return models.RateLimitPolicy{}, fmt.Errorf("invalid rate limit %q: expected <limit>/<window>", raw)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
	if err != nil || limit <= 0 {
		return models.RateLimitPolicy{}, fmt.Errorf("invalid rate limit %q: limit must be a positive integer", raw)
	}

	window, err := time.ParseDuration(strings.TrimSpace(windowStr))
	if err != nil || window < time.Second {
		return models.RateLimitPolicy{}, fmt.Errorf("invalid rate limit %q: window must be a duration of at least 1s", raw)
	}

	return models.RateLimitPolicy{Name: name, Limit: limit, Window: window}, nil
}
