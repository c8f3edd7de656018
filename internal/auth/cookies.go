package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/config"
)

const (
	// SessionCookieName carries the opaque session id
	SessionCookieName = "session_id"
	// CSRFCookieName carries the CSRF token for JavaScript to echo back
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName is where state-changing requests present the CSRF token
	CSRFHeaderName = "X-CSRF-Token"
)

// SessionSource records how a request presented its session id
type SessionSource int

const (
	SessionSourceNone SessionSource = iota
	SessionSourceCookie
	SessionSourceHeader
)

// SetSessionCookie sets the session id in an httpOnly cookie
func SetSessionCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration, cfg config.CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   cfg.Domain,
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true, // Critical: prevents JavaScript access (XSS protection)
		Secure:   cfg.Secure,
		SameSite: parseSameSite(cfg.SameSite),
	})
}

// SetCSRFTokenCookie sets a CSRF token in a readable cookie (not httpOnly)
// JavaScript needs to read this and send it in X-CSRF-Token header
func SetCSRFTokenCookie(w http.ResponseWriter, csrfToken string, maxAge time.Duration, cfg config.CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		Domain:   cfg.Domain,
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: false,
		Secure:   cfg.Secure,
		SameSite: parseSameSite(cfg.SameSite),
	})
}

// ClearSessionCookies expires both the session and the CSRF cookie
func ClearSessionCookies(w http.ResponseWriter, cfg config.CookieConfig) {
	for _, name := range []string{SessionCookieName, CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   cfg.Domain,
			MaxAge:   -1, // Negative MaxAge deletes the cookie
			HttpOnly: name == SessionCookieName,
			Secure:   cfg.Secure,
			SameSite: parseSameSite(cfg.SameSite),
		})
	}
}

// SessionIDFromRequest returns the session id and where it came from. The
// Authorization bearer header wins over the cookie.
func SessionIDFromRequest(r *http.Request) (string, SessionSource) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && strings.TrimSpace(parts[1]) != "" {
			return strings.TrimSpace(parts[1]), SessionSourceHeader
		}
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, SessionSourceCookie
	}

	return "", SessionSourceNone
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
