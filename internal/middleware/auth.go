// Package middleware provides HTTP middlewares for authentication, request
// logging and rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/atinyakov/learnpath/internal/authtoken"
	"github.com/atinyakov/learnpath/internal/models"
)

type ctxKey string

const identityKey ctxKey = "identity"

// BearerAuth returns a middleware that requires an HS256 bearer token signed
// with secret.
//
// On success the owner id and tier carried by the token are stored in the
// request context, so downstream handlers can read them with
// GetOwnerIDFromContext and GetTierFromContext.
func BearerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			id, err := authtoken.Parse(secret, strings.TrimSpace(token))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, id authtoken.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetOwnerIDFromContext extracts the authenticated owner id. Returns an empty
// string if not found.
func GetOwnerIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey).(authtoken.Identity); ok {
		return id.OwnerID
	}
	return ""
}

// GetTierFromContext extracts the caller's tier, defaulting to FREE.
func GetTierFromContext(ctx context.Context) models.Tier {
	if id, ok := ctx.Value(identityKey).(authtoken.Identity); ok && models.ValidTier(id.Tier) {
		return id.Tier
	}
	return models.TierFree
}
