package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/crestline-motors/adminauth/rate"
)

// RateLimit returns middleware enforcing the given route class's budget.
// The identity is the authenticated admin's id when Guard ran earlier in
// the chain, else the client IP. Over-budget requests get 429 with a
// Retry-After header in whole seconds.
func RateLimit(limiter *rate.Limiter, class rate.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := requestIdentity(r.Context(), r)

			res, err := limiter.Allow(r.Context(), class, identity)
			_ = err // outage policy is baked into res.Allowed per class
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprint(int(res.RetryAfter.Seconds())))
				}
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestIdentity(ctx context.Context, r *http.Request) string {
	if auth := AuthResultFromContext(ctx); auth != nil && auth.AdminID != "" {
		return auth.AdminID
	}
	return ClientIP(r)
}
