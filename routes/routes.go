package routes

import (
	"log"
	"os"

	controller "wacast/controllers"
	"wacast/middleware"
	"wacast/utils"
	"wacast/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Get("/me", controller.GetCurrentUser)
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, dispatcher *worker.Dispatcher, gateway worker.Gateway, mailer *utils.Mailer) {
	// Initialize controllers with their respective loggers
	blockController := controller.NewBlockController(db, log.New(os.Stdout, "BLOCK: ", log.LstdFlags))
	campaignController := controller.NewCampaignController(db, log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags), dispatcher)
	messageController := controller.NewMessageController(db, log.New(os.Stdout, "MESSAGE: ", log.LstdFlags), gateway)
	settingsController := controller.NewSettingsController(db, log.New(os.Stdout, "SETTINGS: ", log.LstdFlags))
	emailController := controller.NewEmailController(db, log.New(os.Stdout, "EMAIL: ", log.LstdFlags), mailer)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Block and recipient routes
	block := api.Group("/blocks")
	block.Post("/", blockController.CreateBlock)
	block.Get("/", blockController.GetBlocks)
	block.Get("/:id", blockController.GetBlock)
	block.Delete("/:id", blockController.DeleteBlock)
	block.Post("/:id/recipients", blockController.ImportRecipients)

	recipient := api.Group("/recipients")
	recipient.Get("/", blockController.GetRecipients)
	recipient.Put("/:id", blockController.UpdateRecipient)
	recipient.Delete("/:id", blockController.DeleteRecipient)

	// Campaign routes
	campaign := api.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Post("/:id/resume", campaignController.ResumeCampaign)
	campaign.Post("/:id/cancel", campaignController.CancelCampaign)
	campaign.Post("/:id/retry-failed", campaignController.RetryFailed)

	// WebSocket route for campaign progress
	app.Get("/api/v1/campaigns/:id/progress", websocket.New(func(c *websocket.Conn) {
		campaignController.HandleCampaignProgressWS(c)
	}))

	// Ad-hoc message routes
	message := api.Group("/messages")
	message.Post("/", messageController.SendMessage)
	message.Get("/", messageController.GetMessages)
	message.Get("/:id", messageController.GetMessage)

	// Auto-reply bot configuration
	settings := api.Group("/settings")
	settings.Get("/autoreply", settingsController.GetBotConfig)
	settings.Put("/autoreply", settingsController.UpdateBotConfig)
	settings.Get("/webhook-logs", settingsController.GetWebhookLogs)

	// One-shot email blast
	api.Post("/email/blast", emailController.SendEmailBlast)
}

func SetupRoutes(app *fiber.App, db *gorm.DB, dispatcher *worker.Dispatcher, gateway worker.Gateway, autoReplier *worker.AutoReplier, mailer *utils.Mailer) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Provider webhook, authenticated by shared secret instead of JWT
	webhookController := controller.NewWebhookController(db, logrus.WithField("component", "webhook"), autoReplier)
	app.Post("/webhooks/whapi", middleware.WebhookRateLimiter(), webhookController.HandleWhapiWebhook)

	// Setup auth routes
	SetupAuthRoutes(app, db)

	// Setup API routes
	SetupAPIRoutes(app, db, dispatcher, gateway, mailer)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
