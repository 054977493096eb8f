package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/authgate/internal/database/service"
	"github.com/EgehanKilicarslan/authgate/internal/token"
)

const claimsKey = "claims"

// AuthMiddleware handles JWT validation
type AuthMiddleware struct {
	service service.AuthService
	logger  *slog.Logger
}

// NewAuthMiddleware creates a new auth middleware instance
func NewAuthMiddleware(service service.AuthService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		service: service,
		logger:  logger,
	}
}

// RequireAuth validates the bearer token, rejects blacklisted ones and stores the claims in the context
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.logger.Warn("⚠️ [Middleware] Missing Authorization header")
			AbortWithError(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.logger.Warn("⚠️ [Middleware] Invalid Authorization header format")
			AbortWithError(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := m.service.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, service.ErrInvalidToken) {
				m.logger.Warn("⚠️ [Middleware] Invalid token", "error", err)
				AbortWithError(c, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			m.logger.Error("❌ [Middleware] Token validation failed", "error", err)
			AbortWithError(c, http.StatusInternalServerError, "Internal server error")
			return
		}

		c.Set(claimsKey, claims)
		m.logger.Debug("✅ [Middleware] Token validated", "user_id", claims.Subject)

		c.Next()
	}
}

// RequireRole lets the request through when the caller holds any of roles.
// Must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		for _, role := range roles {
			if slices.Contains(claims.Roles, role) {
				c.Next()
				return
			}
		}

		m.logger.Warn("🚫 [Middleware] Insufficient role",
			"user_id", claims.Subject,
			"roles", claims.Roles,
			"required", roles,
		)
		AbortWithError(c, http.StatusForbidden, "Insufficient permissions")
	}
}

// GetClaims returns the claims stored by RequireAuth
func GetClaims(c *gin.Context) (*token.Claims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*token.Claims)
	return claims, ok
}
