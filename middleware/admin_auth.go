package middleware

import (
	"net/http"
	"strings"

	"bookline/config"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware guards operator-only endpoints such as token issuance.
// The caller presents the deployment's admin API key as a bearer credential.
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		adminKey := config.AppConfig.AdminAPIKey
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access is not configured"})
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		if strings.TrimPrefix(authHeader, "Bearer ") != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin credential"})
			return
		}

		c.Set("isAdmin", true)
		c.Next()
	}
}
