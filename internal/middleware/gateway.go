package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/gateway"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// Protect runs every request through the gateway pipeline under policy.
// Denied requests get a JSON error with the reason and never reach next;
// allowed requests carry the verdict (and session, if any) in their context.
func Protect(pipeline *gateway.Pipeline, policy gateway.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verdict := pipeline.Validate(r, policy)
			setRateLimitHeaders(w, verdict)

			if verdict.Denied() {
				pkghttp.WriteErrorWithFields(w, verdict.Error.HTTPStatus(), string(verdict.Error), verdict.Error.Message(), verdict.Fields)
				return
			}

			ctx := gateway.NewContext(r.Context(), &verdict)
			if verdict.Session != nil {
				ctx = auth.WithSession(ctx, verdict.Session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, verdict gateway.Verdict) {
	result := verdict.RateLimit
	if result == nil || result.Degraded {
		return
	}

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

	if !result.Permitted {
		retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
		h.Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
	}
}
