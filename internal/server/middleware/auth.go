package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/service"
)

type contextKeyAuth string

// AuthUserKey is the context key for the signed-in user.
const AuthUserKey contextKeyAuth = "auth_user"

// TokenValidator checks a bearer token against the active session.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, bearer string) (*model.User, error)
}

// Authenticate returns an HTTP middleware that requires a Bearer token equal
// to the profile's live session token. On success the session user is
// attached to the request context.
func Authenticate(auth TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			u, err := auth.ValidateAccessToken(r.Context(), token)
			switch {
			case errors.Is(err, service.ErrNotAuthenticated):
				writeAuthError(w, http.StatusUnauthorized, "Session expired or signed out")
				return
			case errors.Is(err, service.ErrInvalidCredentials):
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			case err != nil:
				writeAuthError(w, http.StatusInternalServerError, "Authentication error")
				return
			}

			ctx := context.WithValue(r.Context(), AuthUserKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser extracts the authenticated user from the context. Returns nil for
// unauthenticated requests.
func GetUser(ctx context.Context) *model.User {
	if u, ok := ctx.Value(AuthUserKey).(*model.User); ok {
		return u
	}
	return nil
}

// WithUser returns a copy of ctx carrying u, as Authenticate would.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, AuthUserKey, u)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
