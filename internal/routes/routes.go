package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/gateway"
	"github.com/BradenHooton/gatekeeper/internal/handlers"
	"github.com/BradenHooton/gatekeeper/internal/middleware"
	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// Dependencies holds everything the routes are wired to
type Dependencies struct {
	Pipeline      *gateway.Pipeline
	Resolver      *pkghttp.ClientIPResolver
	InternalToken *auth.InternalTokenVerifier
	Sessions      *handlers.SessionHandler
	Admin         *handlers.AdminHandler
	Health        *handlers.HealthHandler
}

// Route policies
var (
	csrfTokenPolicy = gateway.Policy{RateLimitPolicy: models.PolicyAPI}

	// The authentication service calls this on behalf of the user. It must
	// be a trusted proxy and forward the user's address and User-Agent so
	// that the auth limit and bot check apply to the user, not the service.
	createSessionPolicy = gateway.Policy{
		RateLimitPolicy: models.PolicyAuth,
		Sanitize:        true,
		Schema:          func() any { return &handlers.CreateSessionRequest{} },
	}

	currentSessionPolicy = gateway.Policy{RequireAuth: true, RateLimitPolicy: models.PolicyAPI}
	logoutPolicy         = gateway.Policy{RequireAuth: true, RequireCSRF: true, RateLimitPolicy: models.PolicyAPI}
	revokeAllPolicy      = gateway.Policy{RequireAuth: true, RequireCSRF: true, RateLimitPolicy: models.PolicyAuth}
	internalRevokePolicy = gateway.Policy{RateLimitPolicy: models.PolicyAPI}

	blockIPPolicy = gateway.Policy{
		RequireAuth:     true,
		RequireCSRF:     true,
		RateLimitPolicy: models.PolicyAPI,
		Sanitize:        true,
		Schema:          func() any { return &handlers.BlockIPRequest{} },
	}
	auditPolicy = gateway.Policy{RequireAuth: true, RateLimitPolicy: models.PolicySearch}
)

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	protect := func(policy gateway.Policy) chi.Router {
		return router.With(middleware.Protect(deps.Pipeline, policy))
	}

	router.Get("/health", deps.Health.Health)

	// Public token endpoint: in-process flood limit first, then the shared limiter
	router.With(
		middleware.FloodLimitByIP(middleware.DefaultFloodLimit(), deps.Resolver),
		middleware.Protect(deps.Pipeline, csrfTokenPolicy),
	).Get("/csrf-token", deps.Sessions.CSRFToken)

	// Service-to-service routes
	router.Group(func(r chi.Router) {
		r.Use(deps.InternalToken.Middleware)

		r.With(middleware.Protect(deps.Pipeline, createSessionPolicy)).Post("/sessions", deps.Sessions.Create)
		r.With(middleware.Protect(deps.Pipeline, internalRevokePolicy)).Delete("/internal/users/{id}/sessions", deps.Sessions.DestroyUserSessions)
	})

	// Session holders
	protect(currentSessionPolicy).Get("/sessions/current", deps.Sessions.Current)
	protect(logoutPolicy).Delete("/sessions/current", deps.Sessions.Logout)
	protect(revokeAllPolicy).Post("/sessions/revoke-all", deps.Sessions.RevokeAll)

	// Admin-only routes
	protect(blockIPPolicy).With(auth.RequireRole(models.RoleAdmin)).Post("/admin/blocked-ips", deps.Admin.BlockIP)
	protect(auditPolicy).With(auth.RequireRole(models.RoleAdmin)).Get("/admin/audit", deps.Admin.ListAudit)
}
