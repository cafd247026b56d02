package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lvaldez/tarotdesk/libs/auth"
)

func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"kind":%q,"message":%q}}`, kind, message)
}

// ClaimsFromContext returns the verified JWT claims set by RequireRole, or nil.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	v, _ := ctx.Value(ctxKeyClaims).(*auth.Claims)
	return v
}

// RequireRole verifies the bearer token and rejects callers whose role is not
// in roles. Admins always pass (they can act on behalf of clients).
func RequireRole(secret string, roles ...string) Middleware {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			claims, err := auth.ParseAndVerifyHS256(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			if _, ok := allowed[claims.Role]; !ok && claims.Role != auth.RoleAdmin {
				writeAuthError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
