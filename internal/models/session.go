package models

import "time"

// Principal identifies an authenticated user handed to the gateway by the
// authentication service.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// SessionRecord is the server-side state behind an opaque session id.
type SessionRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	LoginTime    time.Time `json:"login_time"`
	LastActivity time.Time `json:"last_activity"`
	CSRFToken    string    `json:"csrf_token"`
}

// IsAdmin reports whether the session belongs to an administrator.
func (s *SessionRecord) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
