// File: bookline/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookline/config"
	"bookline/database"
	appointmentRepo "bookline/database/repository/appointment"
	conversationRepo "bookline/database/repository/conversation"
	tenantRepo "bookline/database/repository/tenant"
	"bookline/handlers"
	"bookline/middleware"
	"bookline/routes"
	"bookline/services/agent"
	"bookline/services/intelligence"
	"bookline/services/messaging"
	"bookline/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware())

	// repositories.
	db := database.DB()
	tenants := tenantRepo.NewMongoTenantRepo(db)
	appointments := appointmentRepo.NewMongoAppointmentRepo(db)
	conversations := conversationRepo.NewMongoConversationRepo(db, utils.GetCacheClient())

	// model provider.
	provider, err := intelligence.NewProvider(context.Background(), intelligence.Config{
		Type:   intelligence.ProviderType(config.AppConfig.ModelProvider),
		Model:  config.AppConfig.ModelName,
		APIKey: providerAPIKey(),
	})
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize model provider: %v", err)
	}

	// messaging adapters.
	sender, err := messaging.NewWhatsAppClient(config.AppConfig.WhatsAppAPIURL, config.AppConfig.WhatsAppAccessToken)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize whatsapp client: %v", err)
	}
	var verifier messaging.SignatureVerifier = messaging.NewHMACVerifier(config.AppConfig.WebhookAppSecret)
	if !config.IsProduction() && config.AppConfig.WebhookAppSecret == "" {
		logger.Warn("no webhook app secret configured, accepting unsigned webhooks")
		verifier = messaging.NoopVerifier{}
	}

	// handlers.
	webhookHandler := &handlers.WebhookHandler{
		Tenants:       tenants,
		Conversations: conversations,
		Appointments:  appointments,
		Provider:      provider,
		Sender:        sender,
		Verifier:      verifier,
		Assembler: &agent.Assembler{
			Conversations: conversations,
			Directory:     tenants,
			HistoryLimit:  config.AppConfig.HistoryLimit,
		},
		MaxToolRounds: config.AppConfig.MaxToolRounds,
		ModelTimeout:  time.Duration(config.AppConfig.ModelTimeoutMS) * time.Millisecond,
		VerifyToken:   config.AppConfig.WhatsAppVerifyToken,
	}
	opsHandler := handlers.NewOpsHandler(appointments, conversations)

	routes.RegisterWebhookRoutes(router, webhookHandler)
	routes.RegisterOpsRoutes(router, opsHandler)
	routes.RegisterHealthRoutes(router)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}

func providerAPIKey() string {
	if config.AppConfig.ModelProvider == string(intelligence.ProviderTypeAnthropic) {
		return config.AppConfig.AnthropicAPIKey
	}
	return config.AppConfig.GeminiAPIKey
}
