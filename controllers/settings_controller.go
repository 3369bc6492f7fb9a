package controller

import (
	"log"

	"wacast/models"
	"wacast/worker"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SettingsController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSettingsController(db *gorm.DB, logger *log.Logger) *SettingsController {
	return &SettingsController{DB: db, Logger: logger}
}

func (sc *SettingsController) GetBotConfig(c *fiber.Ctx) error {
	return c.JSON(worker.LoadBotConfig(sc.DB))
}

// UpdateBotConfig replaces the auto-reply configuration. Values are clamped
// to their allowed ranges before persisting; the clamped result is returned.
func (sc *SettingsController) UpdateBotConfig(c *fiber.Ctx) error {
	cfg := worker.LoadBotConfig(sc.DB)
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := worker.SaveBotConfig(sc.DB, cfg); err != nil {
		sc.Logger.Printf("Failed to save bot config: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save configuration",
		})
	}

	return c.JSON(worker.LoadBotConfig(sc.DB))
}

// GetWebhookLogs returns the most recent webhook deliveries for debugging
// provider integration issues
func (sc *SettingsController) GetWebhookLogs(c *fiber.Ctx) error {
	var logs []models.WebhookLog
	if err := sc.DB.Order("id DESC").Limit(100).Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch webhook logs",
		})
	}
	return c.JSON(logs)
}
