// Package middleware provides authentication middleware for the API router.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/pkg/accesstoken"
	"github.com/genbu-cloud/genbu/pkg/api/auth"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	wopiGrantKey contextKey = "wopi_grant"
)

// SessionAuth validates the genbu-session cookie and puts the caller's user
// id into the request context. Requests without a valid session get 401.
func SessionAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil || cookie.Value == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateSession(cookie.Value)
			if err != nil {
				http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the session user id, or uuid.Nil outside an
// authenticated request.
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WOPIAuth resolves the access_token query parameter through the token
// service. Missing and unknown tokens get 401 before any engine call.
func WOPIAuth(tokens *accesstoken.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.URL.Query().Get("access_token")
			if raw == "" {
				http.Error(w, "Missing access token", http.StatusUnauthorized)
				return
			}

			grant, err := tokens.Resolve(r.Context(), raw)
			if err != nil {
				http.Error(w, "Failed to resolve access token", http.StatusInternalServerError)
				return
			}
			if grant == nil {
				http.Error(w, "Unknown access token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), wopiGrantKey, grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetWOPIGrant returns the resolved access-token context, or nil outside a
// WOPI request.
func GetWOPIGrant(ctx context.Context) *accesstoken.Context {
	if grant, ok := ctx.Value(wopiGrantKey).(*accesstoken.Context); ok {
		return grant
	}
	return nil
}
