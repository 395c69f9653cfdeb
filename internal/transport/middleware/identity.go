package middleware

import (
	"net/http"
	"strconv"

	core "github.com/frahmantamala/tutor-billing/internal"
	"github.com/frahmantamala/tutor-billing/pkg/logger"
)

// Identity reads the actor the gateway attached to the request. The
// engine trusts these headers as-is; authentication happened upstream.
// Requests without an identity pass through, handlers reject them
// where one is required.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawID := r.Header.Get("X-User-ID")
		if rawID == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			http.Error(w, "invalid X-User-ID header", http.StatusBadRequest)
			return
		}

		actor := core.Actor{
			ID:   userID,
			Role: r.Header.Get("X-User-Role"),
		}

		ctx := core.ContextWithActor(r.Context(), actor)
		ctx = logger.With(ctx, "userID", actor.ID, "role", actor.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
