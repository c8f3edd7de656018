package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// InternalTokenHeader is presented by trusted backend services (the
// authentication service) on internal endpoints.
const InternalTokenHeader = "X-Internal-Token"

// InternalTokenVerifier checks the shared service-to-service token. Only the
// SHA256 digest is kept in memory and comparisons run in constant time.
type InternalTokenVerifier struct {
	digest [sha256.Size]byte
}

// NewInternalTokenVerifier creates a verifier for the configured token
func NewInternalTokenVerifier(token string) *InternalTokenVerifier {
	return &InternalTokenVerifier{digest: sha256.Sum256([]byte(token))}
}

// Verify reports whether presented matches the configured token
func (v *InternalTokenVerifier) Verify(presented string) bool {
	if presented == "" {
		return false
	}
	sum := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(sum[:], v.digest[:]) == 1
}

// Middleware rejects requests that do not carry the internal token
func (v *InternalTokenVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Verify(strings.TrimSpace(r.Header.Get(InternalTokenHeader))) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
