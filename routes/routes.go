package routes

import (
	"time"

	"bookline/handlers"
	"bookline/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterWebhookRoutes registers the inbound messaging endpoints.
func RegisterWebhookRoutes(r *gin.Engine, wh *handlers.WebhookHandler) {
	webhook := r.Group("/webhook")
	{
		webhook.GET("/whatsapp", wh.VerifySubscription) // Provider subscribe handshake
		webhook.POST("/whatsapp", wh.HandleInbound)     // Message deliveries
	}
}

// RegisterOpsRoutes registers the support endpoints: token issuance behind the
// admin credential, the rest behind the tenant-scoped JWT it issues.
func RegisterOpsRoutes(r *gin.Engine, oh *handlers.OpsHandler) {
	api := r.Group("/api")
	api.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	auth := api.Group("/auth")
	auth.Use(middleware.AdminAuthMiddleware())
	{
		auth.POST("/token", handlers.IssueToken)
	}

	protected := api.Group("")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		protected.GET("/appointments", oh.ListAppointments)
		protected.GET("/conversations/:id/messages", oh.ListConversationMessages)
	}
}

// RegisterHealthRoutes registers liveness endpoints.
func RegisterHealthRoutes(r *gin.Engine) {
	r.GET("/health", handlers.Health)
}
