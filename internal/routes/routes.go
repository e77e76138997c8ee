package routes

import (
	"log"
	"os"

	"github.com/AzkaWisata/autochat-backend/internal/handlers"
	"github.com/AzkaWisata/autochat-backend/internal/middleware"
	"github.com/AzkaWisata/autochat-backend/internal/services"
	"github.com/AzkaWisata/autochat-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, automation *services.AutomationService) {
	whatsappHandler := handlers.NewWhatsAppHandler(store, automation)
	automationHandler := handlers.NewAutomationHandler(store, automation)
	healthHandler := handlers.NewHealthHandler("1.0.0")

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to AutoChat Backend!",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":        "/health",
				"webhook":       "/webhook/whatsapp",
				"test_whatsapp": "/test/whatsapp",
				"automation":    "/api/automation",
			},
		})
	})

	app.Get("/health", healthHandler.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	// WhatsApp webhook - environment-aware signature validation
	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		webhooks.Post("/whatsapp", whatsappHandler.HandleWebhook)
		log.Println("⚠️  WhatsApp webhook validation DISABLED for development")
	} else {
		webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(), whatsappHandler.HandleWebhook)
	}

	// ========== TEST ROUTES (Development Only) ==========
	if os.Getenv("ENVIRONMENT") == "development" {
		app.Post("/test/whatsapp", whatsappHandler.HandleTestWebhook)
	}

	// ========== AUTOMATION ROUTES ==========
	api := app.Group("/api")

	automationGroup := api.Group("/automation")
	automationGroup.Get("/status", automationHandler.Status)
	automationGroup.Post("/enable", automationHandler.Enable)
	automationGroup.Post("/disable", automationHandler.Disable)
	automationGroup.Get("/rules", automationHandler.ListRules)
	automationGroup.Get("/logs", automationHandler.ListLogs)
	automationGroup.Get("/contacts/:contactId", automationHandler.ContactState)
}
