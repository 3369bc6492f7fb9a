package main

import (
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"wacast/config"
	"wacast/middleware"
	"wacast/routes"
	"wacast/utils"
	"wacast/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "WACAST: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry error reporting when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Initialize the WhatsApp gateway and delivery machinery
	gateway := utils.NewWhapiClient(config.AppConfig.Whapi)
	if !gateway.IsConfigured() {
		logger.Println("⚠️  WHAPI_TOKEN not set, campaign sends will fail until configured")
	}

	dispatcher := worker.NewDispatcher(
		config.DB,
		gateway,
		logrus.WithField("component", "dispatcher"),
		config.AppConfig.SendBackoffBaseMs,
	)
	autoReplier := worker.NewAutoReplier(config.DB, gateway, logrus.WithField("component", "autoreply"))
	mailer := utils.NewMailer(config.AppConfig.SMTP)

	// Resume any campaign that was running when the process last stopped
	dispatcher.Trigger()

	// Setup routes
	routes.SetupRoutes(app, config.DB, dispatcher, gateway, autoReplier, mailer)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
