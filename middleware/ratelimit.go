package middleware

import (
	"net/http"
	"strconv"
	"time"

	"docuchain/internal/ratelimit"
	"docuchain/pkg/logger"
)

// RateLimit caps requests per authenticated account. It must run inside
// AuthMiddleware. A failing limiter lets the request through.
func RateLimit(lim ratelimit.Limiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := AccountID(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}
			d, err := lim.Allow(r.Context(), "claims:"+key, limit, window)
			if err != nil {
				logger.Sugar.Warnf("Rate limiter unavailable, allowing request: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				retry := int(time.Until(d.ResetAt).Seconds()) + 1
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
