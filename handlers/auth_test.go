package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bookline/config"
	"bookline/middleware"
	"bookline/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func authTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config.AppConfig.JWTSecret = "test-secret"
	config.AppConfig.AdminAPIKey = "ops-admin-key"
	t.Cleanup(func() {
		config.AppConfig.JWTSecret = ""
		config.AppConfig.AdminAPIKey = ""
	})

	r := gin.New()
	auth := r.Group("/api/auth")
	auth.Use(middleware.AdminAuthMiddleware())
	auth.POST("/token", IssueToken)

	protected := r.Group("/api")
	protected.Use(middleware.JWTAuthMiddleware())
	protected.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant_id": c.GetString("tenantID")})
	})
	return r
}

func TestIssueTokenRoundTripsThroughOpsAuth(t *testing.T) {
	r := authTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{"tenant_id":"tenant-42"}`))
	req.Header.Set("Authorization", "Bearer ops-admin-key")
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	require.Equal(t, 24*60*60, body.ExpiresIn)

	tenantID, err := utils.ExtractTenantIDFromToken(body.Token)
	require.NoError(t, err)
	require.Equal(t, "tenant-42", tenantID)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req2.Header.Set("Authorization", "Bearer "+body.Token)
	r.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
	require.JSONEq(t, `{"tenant_id":"tenant-42"}`, w2.Body.String())
}

func TestIssueTokenHonorsRequestedTTL(t *testing.T) {
	r := authTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{"tenant_id":"tenant-42","ttl_hours":2}`))
	req.Header.Set("Authorization", "Bearer ops-admin-key")
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ExpiresIn int `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2*60*60, body.ExpiresIn)
}

func TestIssueTokenRejectsBadAdminCredential(t *testing.T) {
	r := authTestRouter(t)

	for _, header := range []string{"", "Bearer wrong-key", "Basic ops-admin-key"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{"tenant_id":"tenant-42"}`))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestIssueTokenRequiresConfiguredAdminKey(t *testing.T) {
	r := authTestRouter(t)
	config.AppConfig.AdminAPIKey = ""

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{"tenant_id":"tenant-42"}`))
	req.Header.Set("Authorization", "Bearer ops-admin-key")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestIssueTokenRequiresTenantID(t *testing.T) {
	r := authTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer ops-admin-key")
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
