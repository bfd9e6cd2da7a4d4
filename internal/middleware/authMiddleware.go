package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/ai-gateway/internal/httperror"
	"github.com/aman-churiwal/ai-gateway/internal/service"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (*service.AdminClaims, error)
}

// Validates JWT token and requires authentication
func RequireAuth(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httperror.Write(c, http.StatusUnauthorized, httperror.CodeUnauthorized, "Authorization header required")
			return
		}

		// Check Bearer prefix
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			httperror.Write(c, http.StatusUnauthorized, httperror.CodeUnauthorized, "Invalid authorization header format. Use: Bearer <token>")
			return
		}

		tokenString := parts[1]

		// Validate token
		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			httperror.Write(c, http.StatusUnauthorized, httperror.CodeUnauthorized, "Invalid or expired token")
			return
		}

		// Store user info in context
		c.Set("user_id", claims.Subject)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)

		c.Next()
	}
}
