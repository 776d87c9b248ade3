// Package middleware provides HTTP middleware for authentication, CORS
// handling, rate limiting, and request context management.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tunetogether/backend/internal/logging"
	"github.com/tunetogether/backend/internal/services"
	"github.com/tunetogether/backend/internal/store"
)

type contextKey string

const (
	// UserKey is the context key for the authenticated user.
	UserKey contextKey = "user"
)

// CurrentUser is the authenticated principal attached to the request context.
type CurrentUser struct {
	ID       string
	Username string
	Email    string
}

// extractToken pulls the bearer token from the access_token cookie or the
// Authorization header, preferring the cookie like the login flow that set it.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie("access_token"); err == nil && c.Value != "" {
		return strings.TrimPrefix(c.Value, "Bearer ")
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// AuthMiddleware validates the bearer token, resolves the principal against
// the user store, and adds the CurrentUser to the request context.
// Returns 401 for missing/invalid tokens and unknown principals.
func AuthMiddleware(authService *services.AuthService, users *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventMissingAuth, "missing credentials")
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			claims, err := authService.ValidateToken(token)
			if err != nil {
				logging.LogSecurityEvent(r.Context(), logging.SecurityEventInvalidJWT, "invalid or expired token")
				http.Error(w, `{"error":"could not validate credentials"}`, http.StatusUnauthorized)
				return
			}

			user, err := users.GetUserByEmail(r.Context(), claims.Email())
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					logging.LogSecurityEvent(r.Context(), logging.SecurityEventInvalidJWT, "token principal no longer exists")
					http.Error(w, `{"error":"user not found"}`, http.StatusUnauthorized)
					return
				}
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}

			current := &CurrentUser{ID: user.ID, Username: user.Username, Email: user.Email}
			ctx := context.WithValue(r.Context(), UserKey, current)
			ctx = logging.UpdateRequestAttrs(ctx, current.ID, current.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser retrieves the authenticated user from the request context.
// Returns nil if no user is present (e.g., unauthenticated request).
func GetUser(ctx context.Context) *CurrentUser {
	user, _ := ctx.Value(UserKey).(*CurrentUser)
	return user
}
