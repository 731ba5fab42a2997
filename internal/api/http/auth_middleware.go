package httpapi

import (
	"net/http"
	"strings"
)

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		actor, err := s.authSvc.Authenticate(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		ctx := withAuthUser(r.Context(), &AuthUser{UserID: actor.UserID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the bearer header, the x-auth-token header, or the token
// query parameter used by browser WebSocket and EventSource clients.
func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	if v := strings.TrimSpace(r.Header.Get("x-auth-token")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
