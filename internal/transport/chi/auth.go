package chi

import (
	"context"
	"net/http"
	"strings"
)

// TokenVerifier validates an access token and returns the subject user id.
type TokenVerifier interface {
	VerifyAccess(token string) (string, error)
}

type ctxKey int

const userIDKey ctxKey = iota

// ContextWithUserID stores an authenticated user id on the context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, empty when anonymous.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// authenticate resolves an optional Bearer token into a user id on the
// request context. Requests without a token pass through anonymous; a
// token that is present but invalid is rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			next.ServeHTTP(w, r)
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(auth, bearerPrefix) {
			writeError(w, http.StatusUnauthorized, codeUnauthorized,
				"authorization header must use Bearer scheme")
			return
		}

		userID, err := s.verifier.VerifyAccess(auth[len(bearerPrefix):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeInvalidToken, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
	})
}

// requireUser rejects anonymous requests. Must run after authenticate.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
