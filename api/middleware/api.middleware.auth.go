// FilePath: api/middleware/api.middleware.auth.go
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/itsatony/relayhub/internal/errors"
	nuts "github.com/vaudience/go-nuts"
)

type AuthConfig struct {
	Token string
}

// TokenMiddleware guards the admin API with a static bearer token. A
// valid token grants the full admin role set.
type TokenMiddleware struct {
	config AuthConfig
}

type contextKey string

const rolesKey contextKey = "roles"

var adminRoles = []string{"admin", "owner"}

func NewTokenMiddleware(config AuthConfig) *TokenMiddleware {
	return &TokenMiddleware{config: config}
}

// Authenticate validates the bearer token and adds the role set to the
// request context.
func (t *TokenMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			handleError(w, errors.NewAuthError("no token provided", nil))
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(t.config.Token)) != 1 {
			nuts.L.Warnf("[Auth] Rejected admin request from %s", r.RemoteAddr)
			handleError(w, errors.NewAuthError("invalid token", nil))
			return
		}

		ctx := context.WithValue(r.Context(), rolesKey, adminRoles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRoles returns the role set of an authenticated request.
func GetRoles(ctx context.Context) []string {
	if roles, ok := ctx.Value(rolesKey).([]string); ok {
		return roles
	}
	return nil
}

func extractToken(r *http.Request) string {
	bearerToken := r.Header.Get("Authorization")
	if len(strings.Split(bearerToken, " ")) == 2 {
		return strings.Split(bearerToken, " ")[1]
	}
	return ""
}

func handleError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*errors.Error); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiErr.Code)
		json.NewEncoder(w).Encode(apiErr)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
