package middleware

import (
	"net/http"
	"strings"

	"bookline/utils"

	"github.com/gin-gonic/gin"
)

// JWTAuthMiddleware guards the ops API. The token subject is the tenant id
// the caller may operate on.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		tenantID, err := utils.ExtractTenantIDFromToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("tenantID", tenantID)
		c.Next()
	}
}
