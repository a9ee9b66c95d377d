/**
 * @description
 * This file contains custom middleware for the HTTP router. The auth
 * middleware validates operator JWTs and injects the authenticated
 * organization and actor into the request context. Every protected route
 * takes its organization scope from these claims; there is no fallback
 * organization, and requests without one are rejected.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	organizationIDKey contextKey = "organizationID"
	actorIDKey        contextKey = "actorID"
)

// AuthMiddleware creates a middleware that validates HMAC-signed operator
// JWTs carrying `org_id` and `sub` claims.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			orgClaim, _ := claims["org_id"].(string)
			organizationID, err := uuid.Parse(orgClaim)
			if err != nil {
				http.Error(w, "Token missing organization context", http.StatusUnauthorized)
				return
			}
			subject, _ := claims["sub"].(string)
			actorID, err := uuid.Parse(subject)
			if err != nil {
				http.Error(w, "Token missing subject", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), organizationIDKey, organizationID)
			ctx = context.WithValue(ctx, actorIDKey, actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OrganizationFromContext returns the authenticated organization scope.
func OrganizationFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(organizationIDKey).(uuid.UUID)
	return id, ok
}

// ActorFromContext returns the authenticated operator id.
func ActorFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(actorIDKey).(uuid.UUID)
	return id, ok
}
