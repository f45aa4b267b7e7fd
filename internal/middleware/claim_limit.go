package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// ClaimCounter counts the claims a finder filed today (UTC).
type ClaimCounter interface {
	CountTodayByFinder(ctx context.Context, finderID uuid.UUID) (int, error)
}

// ClaimLimit caps how many claims a finder may file per day. Must run
// after JWTAuth. A limit of zero or below disables the check.
func ClaimLimit(counter ClaimCounter, maxPerDay int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxPerDay <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			finderID := UserIDFromCtx(r.Context())
			if finderID == uuid.Nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			count, err := counter.CountTodayByFinder(r.Context(), finderID)
			if err != nil {
				http.Error(w, `{"error":"failed to check claim limit"}`, http.StatusInternalServerError)
				return
			}
			if count >= maxPerDay {
				http.Error(w, fmt.Sprintf(`{"error":"daily claim limit of %d reached"}`, maxPerDay), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
