package middleware

import (
	"context"
	"net/http"
	"strings"

	"chatapi/internal/api/v1/dto"
	"chatapi/internal/logger"
	"chatapi/internal/util"
)

// Injected key type to avoid context collisions
type contextKey string

const UserContextKey = contextKey("user")

// AuthMiddleware verifies the bearer JWT and places the subject user id into
// the request context. Authentication failures are client-visible 401s with
// the standard error envelope; they are never confused with quota errors.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.New()
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warn().Str("path", r.URL.Path).Msg("Authorization header missing")
				dto.ErrorResponse{
					Error:   "unauthenticated",
					Code:    dto.CodeNoToken,
					Message: "Authorization header missing",
				}.Write(w, http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn().Str("path", r.URL.Path).Msg("Malformed authorization header")
				dto.ErrorResponse{
					Error:   "unauthenticated",
					Code:    dto.CodeInvalidToken,
					Message: "Invalid authorization header",
				}.Write(w, http.StatusUnauthorized)
				return
			}
			claims, err := util.ValidateJWT(parts[1], jwtSecret)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Invalid token")
				dto.ErrorResponse{
					Error:   "unauthenticated",
					Code:    dto.CodeInvalidToken,
					Message: "Invalid token",
				}.Write(w, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
