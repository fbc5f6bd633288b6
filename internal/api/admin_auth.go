package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ctxKeyAdminSubject contextKey = "admin_subject"

const adminRole = "admin"

// requireAdmin is chi middleware that accepts only HS256 bearer tokens signed
// with AdminJWTSecret whose role claim is "admin". The role may sit at the top
// level or under app_metadata, which is where hosted identity providers put
// it.
//
// Missing or invalid tokens get 401; valid tokens without the role get 403.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			respondErr(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
			return []byte(s.cfg.AdminJWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			respondErr(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if !hasAdminRole(claims) {
			respondErr(w, http.StatusForbidden, "admin role required")
			return
		}

		sub, _ := claims.GetSubject()
		ctx := context.WithValue(r.Context(), ctxKeyAdminSubject, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func hasAdminRole(claims jwt.MapClaims) bool {
	if role, _ := claims["role"].(string); role == adminRole {
		return true
	}
	if meta, ok := claims["app_metadata"].(map[string]any); ok {
		if role, _ := meta["role"].(string); role == adminRole {
			return true
		}
	}
	return false
}

// adminSubject returns the sub claim of the authenticated admin, for logs.
func adminSubject(r *http.Request) string {
	sub, _ := r.Context().Value(ctxKeyAdminSubject).(string)
	return sub
}
