package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")

	// Gateway errors
	ErrSessionNotFound    = errors.New("session not found or expired")
	ErrUnknownPolicy      = errors.New("unknown rate limit policy")
	ErrInvalidIPAddress   = errors.New("invalid ip address")
	ErrInvalidAuditRecord = errors.New("invalid audit record")
)
