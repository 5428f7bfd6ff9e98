package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/supplychain-recon/internal/auth"
	"github.com/example/supplychain-recon/internal/domain/role"
)

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken extracts JWT token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	PartnerContextKey contextKey = "partner"
)

// AuthMiddleware validates JWT tokens and adds partner claims to context
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				respondError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), PartnerContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole checks if the partner has one of the required roles
func RequireRole(roles ...role.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(PartnerContextKey).(*auth.Claims)
			if !ok {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			for _, allowed := range roles {
				if claims.PartnerRole() == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			respondError(w, "forbidden", http.StatusForbidden)
		})
	}
}

// GetPartnerFromContext retrieves partner claims from the request context
func GetPartnerFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(PartnerContextKey).(*auth.Claims)
	return claims, ok
}

// GetPartnerRole is a helper to get just the acting role from context
func GetPartnerRole(ctx context.Context) role.Role {
	claims, ok := GetPartnerFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.PartnerRole()
}
