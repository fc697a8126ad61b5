package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const ownerIDKey ctxKey = iota

// Middleware extracts OwnerID from a bearer JWT and attaches it to the
// request context. Replaces the teacher's apikey.go gRPC interceptor
// (tenant-API-key/admin surface is excluded by spec.md's Non-goals).
func Middleware(manager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			claims, err := manager.ValidateToken(token)
			if err != nil {
				http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, claims.OwnerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerID extracts the OwnerID attached by Middleware, or "" if absent (e.g.
// in tests that call handlers directly).
func OwnerID(ctx context.Context) string {
	id, _ := ctx.Value(ownerIDKey).(string)
	return id
}
