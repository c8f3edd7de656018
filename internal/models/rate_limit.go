package models

import "time"

// Built-in rate limit policy names
const (
	PolicyAuth   = "auth"
	PolicyAPI    = "api"
	PolicyUpload = "upload"
	PolicySearch = "search"
)

// RateLimitPolicy is a fixed-window ceiling: at most Limit requests per Window.
type RateLimitPolicy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// RateLimitResult reports the outcome of a single limiter check
type RateLimitResult struct {
	Permitted bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the store could not be reached and the request was
	// let through without being counted.
	Degraded bool
}
