package auth

import (
	"context"
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing the validated session in context
	SessionContextKey contextKey = "session"
)

// WithSession returns a copy of ctx carrying session
func WithSession(ctx context.Context, session *models.SessionRecord) context.Context {
	return context.WithValue(ctx, SessionContextKey, session)
}

// GetSessionFromContext extracts the validated session from request context
func GetSessionFromContext(r *http.Request) *models.SessionRecord {
	session, ok := r.Context().Value(SessionContextKey).(*models.SessionRecord)
	if !ok {
		return nil
	}
	return session
}

// RequireRole creates a middleware that enforces role-based access control.
// It must run after the gateway has placed a session in the context.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := GetSessionFromContext(r)
			if session == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if session.Role != role {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
