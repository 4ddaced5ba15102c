// internal/auth/middleware.go

package auth

import (
    "context"
    "errors"
    "net/http"
    "strings"

    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/common/utils"
)

type contextKey string

const userIDKey contextKey = "userID"

// Middleware protects routes with bearer-token authentication
type Middleware struct {
    service Service
}

func NewMiddleware(service Service) *Middleware {
    return &Middleware{service: service}
}

// Authenticate verifies the bearer token and adds the user identity to the
// request context
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        token := extractToken(r)
        if token == "" {
            utils.ErrorResponse(w, "Missing or invalid authorization header", http.StatusUnauthorized)
            return
        }

        userID, err := m.service.ResolveCredential(r.Context(), token)
        if err != nil {
            utils.ErrorResponse(w, "Invalid or expired token", http.StatusUnauthorized)
            return
        }

        ctx := context.WithValue(r.Context(), userIDKey, userID)
        next.ServeHTTP(w, r.WithContext(ctx))
    })
}

// GetUserID returns the authenticated user from the request context
func GetUserID(ctx context.Context) (int64, error) {
    userID, ok := ctx.Value(userIDKey).(int64)
    if !ok || userID <= 0 {
        return 0, errors.New("no authenticated user in context")
    }
    return userID, nil
}

// WithUserID injects a user identity; used by tests to bypass the token path
func WithUserID(ctx context.Context, userID int64) context.Context {
    return context.WithValue(ctx, userIDKey, userID)
}

func extractToken(r *http.Request) string {
    header := r.Header.Get("Authorization")
    if header == "" {
        return ""
    }
    parts := strings.SplitN(header, " ", 2)
    if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
        return ""
    }
    return parts[1]
}
