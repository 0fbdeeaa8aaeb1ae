package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
)

// contextKey is unexported so no other package can read or shadow the
// principal stored by this one.
type contextKey string

const userKey contextKey = "user"

// PrincipalLoader resolves a token subject to a stored user.
// repository.UserRepository satisfies it.
type PrincipalLoader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Authenticate turns a raw token into a principal.
//
// Errors wrap apperror.ErrUnauthenticated when the token is missing or bad,
// or when its subject no longer exists. Any other error is a store failure
// and should surface as a 500.
func Authenticate(ctx context.Context, tokens *TokenService, users PrincipalLoader, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.Unauthenticated("Not authorized, no token")
	}

	userID, err := tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthenticated("Not authorized, token failed")
	}

	user, err := users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("Not authorized, user not found")
		}
		return nil, err
	}
	return user, nil
}

// RequireAuth rejects requests without a valid bearer token and attaches
// the loaded user to the request context.
//
// Chi runs middlewares as a chain (req → M1 → M2 → handler), so anything
// mounted after RequireAuth can rely on UserFromContext succeeding.
func RequireAuth(tokens *TokenService, users PrincipalLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := Authenticate(r.Context(), tokens, users, BearerToken(r))
			if err != nil {
				if errors.Is(err, apperror.ErrUnauthenticated) {
					writeAuthError(w, http.StatusUnauthorized, err.Error())
					return
				}
				writeAuthError(w, http.StatusInternalServerError, "An internal error occurred")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireRole must be mounted after RequireAuth. It answers 403 when the
// principal's role is not in roles.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Not authorized, no token")
				return
			}
			if !slices.Contains(roles, user.Role) {
				writeAuthError(w, http.StatusForbidden,
					"User role "+string(user.Role)+" is not authorized to access this route")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser stores the principal in ctx.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the principal attached by RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// writeAuthError writes the same {success, message} envelope the handler
// package uses. It is duplicated here because handler imports auth.
func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
