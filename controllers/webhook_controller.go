package controller

import (
	"encoding/json"

	"wacast/config"
	"wacast/models"
	"wacast/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type WebhookController struct {
	DB          *gorm.DB
	Logger      *logrus.Entry
	AutoReplier *worker.AutoReplier
}

func NewWebhookController(db *gorm.DB, logger *logrus.Entry, autoReplier *worker.AutoReplier) *WebhookController {
	return &WebhookController{DB: db, Logger: logger, AutoReplier: autoReplier}
}

// HandleWhapiWebhook ingests provider callbacks: message status updates and
// inbound messages. The raw payload is logged before any parsing so that a
// malformed delivery is never lost, and the endpoint always acknowledges an
// authenticated request so the provider does not retry forever.
func (wc *WebhookController) HandleWhapiWebhook(c *fiber.Ctx) error {
	secret := config.AppConfig.Whapi.WebhookSecret
	if secret == "" {
		// with no secret configured nothing can be authenticated
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Webhook secret not configured",
		})
	}

	provided := c.Get("x-whapi-secret")
	if provided == "" {
		provided = c.Query("secret")
	}
	if provided != secret {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook secret",
		})
	}

	body := make([]byte, len(c.Body()))
	copy(body, c.Body())

	logEntry := models.WebhookLog{
		EventType: webhookEventType(body),
		Payload:   string(body),
	}

	updates := worker.ExtractStatusUpdates(body)
	if len(updates) > 0 {
		logEntry.WaMessageID = updates[0].WaMessageID
		logEntry.Status = updates[0].Status
	}
	if err := wc.DB.Create(&logEntry).Error; err != nil {
		wc.Logger.Errorf("recording webhook log: %v", err)
	}

	applied := worker.ApplyStatusUpdates(wc.DB, wc.Logger, updates)
	inbound := wc.AutoReplier.HandleInbound(body)

	return c.JSON(fiber.Map{
		"ok":        true,
		"statuses":  applied,
		"processed": inbound.Processed,
		"replied":   inbound.Replied,
	})
}

// webhookEventType pulls the event label out of the payload, falling back to
// a guess from the top-level keys
func webhookEventType(payload []byte) string {
	var root map[string]interface{}
	if err := json.Unmarshal(payload, &root); err != nil {
		return "unparseable"
	}

	if v, ok := root["event"].(string); ok && v != "" {
		return v
	}
	if obj, ok := root["event"].(map[string]interface{}); ok {
		if v, ok := obj["type"].(string); ok && v != "" {
			return v
		}
	}
	if _, ok := root["statuses"]; ok {
		return "statuses"
	}
	if _, ok := root["messages"]; ok {
		return "messages"
	}
	return "unknown"
}
