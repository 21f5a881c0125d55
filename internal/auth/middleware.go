package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/BradenHooton/agora/internal/models"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
)

type contextKey string

const (
	// UserContextKey stores the caller's token claims.
	UserContextKey contextKey = "user"
	// MasterKeyContextKey marks requests authenticated by the master key.
	MasterKeyContextKey contextKey = "master_key"

	// MasterKeyHeader carries the operator master key.
	MasterKeyHeader = "X-Master-Key"
)

// bearerToken extracts the token from the Authorization header. Websocket
// upgrades may pass it as ?token= since browsers cannot set headers there.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// Authenticate validates the access token and stores its claims on the context.
func Authenticate(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := tm.ValidateToken(token, models.TokenTypeAccess)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin allows admins and superadmins. Use after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r)
		if claims == nil {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}
		if !isAdminRole(claims.Role) {
			pkghttp.WriteForbidden(w, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAdminRole(role string) bool {
	return role == models.RoleAdmin || role == models.RoleSuperadmin
}

// RequireAdminOrMasterKey accepts either a valid X-Master-Key header or an
// admin access token. An empty master key disables the header path.
func RequireAdminOrMasterKey(tm *TokenManager, masterKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		viaToken := Authenticate(tm)(RequireAdmin(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if supplied := r.Header.Get(MasterKeyHeader); supplied != "" {
				if masterKey == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(masterKey)) != 1 {
					pkghttp.WriteUnauthorized(w, "invalid master key")
					return
				}
				ctx := context.WithValue(r.Context(), MasterKeyContextKey, true)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			viaToken.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext returns the caller's claims, or nil when unauthenticated.
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// IsMasterKeyRequest reports whether the request authenticated with the master key.
func IsMasterKeyRequest(r *http.Request) bool {
	ok, _ := r.Context().Value(MasterKeyContextKey).(bool)
	return ok
}
