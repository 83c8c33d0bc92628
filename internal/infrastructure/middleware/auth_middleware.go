package middleware

import (
	"net/http"
	"strings"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/services"

	"github.com/gin-gonic/gin"
)

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		token := parts[1]
		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		// Store caller info in context
		c.Set("identity", claims.Identity)
		c.Set("roles", claims.Roles)
		c.Next()
	}
}

// RequireRoleMiddleware rejects requests whose token does not carry the
// required role. Must run after AuthMiddleware.
func RequireRoleMiddleware(required domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		rolesVal, exists := c.Get("roles")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		roles, ok := rolesVal.([]domain.Role)
		if !ok || !domain.HasRole(roles, required) {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CallerIdentity returns the authenticated identity stored by AuthMiddleware.
func CallerIdentity(c *gin.Context) (domain.Identity, bool) {
	val, exists := c.Get("identity")
	if !exists {
		return "", false
	}
	identity, ok := val.(domain.Identity)
	return identity, ok
}

// CallerRoles returns the authenticated role set stored by AuthMiddleware.
func CallerRoles(c *gin.Context) []domain.Role {
	val, exists := c.Get("roles")
	if !exists {
		return nil
	}
	roles, _ := val.([]domain.Role)
	return roles
}
