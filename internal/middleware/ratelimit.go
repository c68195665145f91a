package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// LimiterSource resolves the token bucket for a request.
type LimiterSource func(r *http.Request) *rate.Limiter

// RateLimit rejects requests with 429 when the request's limiter is empty.
// Rejected requests are not queued or retried.
func RateLimit(src LimiterSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lim := src(r)
			if lim == nil {
				next.ServeHTTP(w, r)
				return
			}

			res := lim.Reserve()
			if !res.OK() {
				writeJSONError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", retryAfter(delay))
				writeJSONError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter rounds d up to whole seconds.
func retryAfter(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
