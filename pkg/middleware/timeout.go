package middleware

import (
	"context"
	"net/http"
	"time"
)

// Deadline attaches a deadline to every request context. Handlers pass the
// context down to the search executor, which aborts with a timeout error once
// the deadline passes; the handler then answers 504 itself.
func Deadline(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
