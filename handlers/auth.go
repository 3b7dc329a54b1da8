package handlers

import (
	"net/http"
	"time"

	"bookline/utils"

	"github.com/gin-gonic/gin"
)

const defaultTokenTTL = 24 * time.Hour

type issueTokenRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	TTLHours int    `json:"ttl_hours"`
}

// IssueToken mints a tenant-scoped JWT for the ops API. The route sits behind
// the admin credential, so whoever reaches it may issue tokens for any tenant.
func IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ttl := defaultTokenTTL
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
	}

	token, err := utils.GenerateToken(req.TenantID, ttl)
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "failed to issue token", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(ttl.Seconds()),
	})
}
