package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/checkout-core/internal/domain/auth"
)

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// OptionalAuth attaches the identity of a valid bearer token to the request
// context. Missing or invalid tokens leave the request anonymous.
func OptionalAuth(a auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || a == nil {
				next.ServeHTTP(w, r)
				return
			}
			id, err := a.Authenticate(r.Context(), token)
			if err != nil {
				zctx.From(r.Context()).Debug("Ignoring bearer token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			ctx := auth.WithIdentity(r.Context(), id)
			ctx = zctx.With(ctx, zap.String("user_id", id.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()) == nil {
			writeError(r.Context(), w, auth.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.FromContext(r.Context())
		switch {
		case id == nil:
			writeError(r.Context(), w, auth.ErrUnauthenticated)
		case !id.IsAdmin():
			writeError(r.Context(), w, auth.ErrForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
