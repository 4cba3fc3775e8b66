// Package middleware provides HTTP middleware for the visa tracker API.
// It includes authentication, CSRF protection, logging, CORS handling, and
// other cross-cutting concerns applied to requests before they reach the
// handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/visatrack/visatrack/internal/auth"
	"github.com/visatrack/visatrack/internal/config"
)

// AuthMiddleware validates JWT tokens and sets identity context
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		token := parts[1]

		// Validate token
		claims, err := auth.ValidateToken(token, cfg.JWT.Secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		// Set identity context
		c.Set("identity_id", claims.IdentityID)
		c.Set("natural_key", claims.NaturalKey)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// RequireRole middleware checks if the authenticated identity has the
// required role. Admins can access everything.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identityRole, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "no role in context"})
			c.Abort()
			return
		}

		if identityRole != role && identityRole != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}
