package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/jobkeep/internal/errors"
)

// RateLimit throttles the API as a whole. Every request runs a
// load→dump cycle on the cache file, so a request storm would turn into
// lock contention against local commands; one shared token bucket keeps
// the API a polite tenant.
func RateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				apperrors.RespondWithError(w, apperrors.CodeRateLimited, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
