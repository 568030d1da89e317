package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/adsync-ai/adsync/internal/api/dto"
	"github.com/adsync-ai/adsync/internal/pkg/crypto"
	"github.com/google/uuid"
)

type contextKey string

const UserContextKey contextKey = "user"

type AuthMiddleware struct {
	jwtManager *crypto.JWTManager
}

func NewAuthMiddleware(jwtManager *crypto.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			dto.Unauthorized(w, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			dto.Unauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.jwtManager.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, crypto.ErrExpiredToken) {
				dto.Unauthorized(w, "token expired")
				return
			}
			dto.Unauthorized(w, "invalid token")
			return
		}

		if claims.Type != crypto.TokenTypeAccess {
			dto.Unauthorized(w, "invalid token type")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireWorkspace rejects tokens without a workspace binding; every
// tenant-scoped route sits behind it.
func (m *AuthMiddleware) RequireWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r.Context())
		if claims == nil || claims.WorkspaceID == uuid.Nil {
			dto.Forbidden(w, "workspace context required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetUserFromContext(ctx context.Context) *crypto.Claims {
	claims, ok := ctx.Value(UserContextKey).(*crypto.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetWorkspaceID returns the workspace bound to the request token, or
// uuid.Nil when unauthenticated.
func GetWorkspaceID(ctx context.Context) uuid.UUID {
	claims := GetUserFromContext(ctx)
	if claims == nil {
		return uuid.Nil
	}
	return claims.WorkspaceID
}
