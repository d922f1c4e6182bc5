package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

type contextKey string

const claimsContextKey contextKey = "user"

// Middleware handles authentication for incoming HTTP requests.
type Middleware struct {
	Config *Config
	Logger *logrus.Logger
}

// NewMiddleware initializes a new authentication middleware.
func NewMiddleware(config *Config, logger *logrus.Logger) *Middleware {
	return &Middleware{
		Config: config,
		Logger: logger,
	}
}

// ClaimsFromContext returns the claims attached by AuthMiddleware.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(jwt.MapClaims)
	return claims, ok
}

// AuthMiddleware rejects requests without a valid HS256 bearer token.
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := extractToken(r)
		if err != nil {
			m.Logger.WithError(err).WithField("client_ip", ClientIP(r)).Warn("Authorization token not found")
			WriteErrorResponse(w, "Authorization token not found", http.StatusUnauthorized)
			return
		}

		claims, err := parseJWT(tokenString, m.Config.JwtSecret)
		if err != nil {
			m.Logger.WithError(err).WithField("client_ip", ClientIP(r)).Warn("Invalid token")
			WriteErrorResponse(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps next so that only tokens carrying role reach it. It must run
// after AuthMiddleware.
func (m *Middleware) RequireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			WriteErrorResponse(w, "Authorization token not found", http.StatusUnauthorized)
			return
		}
		if err := checkRole(claims, role); err != nil {
			m.Logger.WithFields(logrus.Fields{
				"sub":       claims["sub"],
				"client_ip": ClientIP(r),
			}).Warn("Rejected token without required role")
			WriteErrorResponse(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Admin chains AuthMiddleware and RequireRole with the configured admin role.
func (m *Middleware) Admin(next http.Handler) http.Handler {
	return m.AuthMiddleware(m.RequireRole(m.Config.AdminRole, next))
}

func checkRole(claims jwt.MapClaims, role string) error {
	switch v := claims["role"].(type) {
	case string:
		if v == role {
			return nil
		}
	case []interface{}:
		for _, r := range v {
			if s, ok := r.(string); ok && s == role {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: missing role %s", ErrForbidden, role)
}
