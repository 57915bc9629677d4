package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/httpx"
	"brandempire.shop/storefront/internal/observability"
	"brandempire.shop/storefront/internal/profile"
)

// Profile makes sure every request carries a browser profile id, issuing a
// signed cookie on first visit, and stores the id in the request context.
// It must run before Logger for the id to appear in request logs.
func Profile(cookies *profile.Cookies, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = observability.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := cookies.Ensure(w, r)
			if err != nil {
				logger.Error("issue profile cookie", zap.Error(err))
				httpx.WriteError(r.Context(), w, httpx.NewError("profile_unavailable", "could not establish a browser profile", http.StatusInternalServerError))
				return
			}
			next.ServeHTTP(w, r.WithContext(profile.WithID(r.Context(), id)))
		})
	}
}
