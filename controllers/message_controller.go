package controller

import (
	"log"
	"time"

	"wacast/models"
	"wacast/utils"
	"wacast/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageController struct {
	DB      *gorm.DB
	Logger  *log.Logger
	Gateway worker.Gateway
}

func NewMessageController(db *gorm.DB, logger *log.Logger, gateway worker.Gateway) *MessageController {
	return &MessageController{DB: db, Logger: logger, Gateway: gateway}
}

type SendMessageRequest struct {
	To        string `json:"to" validate:"required"`
	Body      string `json:"body" validate:"required"`
	ClientRef string `json:"client_ref"`
}

// SendMessage sends one ad-hoc message outside any campaign. When the caller
// supplies a client_ref that has already been used, the existing ledger entry
// is returned and the gateway is not touched.
func (mc *MessageController) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	phone := utils.NormalizePhone(req.To)
	if phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No usable phone number",
		})
	}

	if !mc.Gateway.IsConfigured() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "WhatsApp gateway is not configured",
		})
	}

	ref := req.ClientRef
	if ref == "" {
		ref = "manual:" + uuid.New().String()
	}

	msg := models.Message{
		To:        phone,
		Body:      req.Body,
		Status:    models.MessagePending,
		Source:    models.SourceManual,
		ClientRef: ref,
	}
	if err := mc.DB.Create(&msg).Error; err != nil {
		if worker.IsDuplicateErr(err) {
			var existing models.Message
			if ferr := mc.DB.Where("client_ref = ?", ref).First(&existing).Error; ferr == nil {
				return c.JSON(fiber.Map{
					"ok":            true,
					"id":            existing.ID,
					"status":        existing.Status,
					"wa_message_id": existing.WaMessageID,
					"deduplicated":  true,
				})
			}
		}
		mc.Logger.Printf("Failed to create message ledger entry: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record message",
		})
	}

	waID, err := mc.Gateway.SendText(phone, req.Body)
	if err != nil {
		mc.DB.Model(&msg).Updates(map[string]interface{}{
			"status": models.MessageFailed,
			"error":  err.Error(),
		})
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"ok":    false,
			"id":    msg.ID,
			"error": err.Error(),
		})
	}

	mc.DB.Model(&msg).Updates(map[string]interface{}{
		"status":        models.MessageSent,
		"wa_message_id": waID,
		"sent_at":       time.Now(),
	})

	return c.JSON(fiber.Map{
		"ok":            true,
		"id":            msg.ID,
		"status":        models.MessageSent,
		"wa_message_id": waID,
	})
}

func (mc *MessageController) GetMessage(c *fiber.Ctx) error {
	var msg models.Message
	if err := mc.DB.First(&msg, c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Message not found",
		})
	}
	return c.JSON(msg)
}

// GetMessages lists recent ledger entries, optionally filtered by recipient
// phone or source
func (mc *MessageController) GetMessages(c *fiber.Ctx) error {
	query := mc.DB.Model(&models.Message{})
	if to := c.Query("to"); to != "" {
		query = query.Where("\"to\" = ?", utils.NormalizePhone(to))
	}
	if source := c.Query("source"); source != "" {
		query = query.Where("source = ?", source)
	}

	var messages []models.Message
	if err := query.Order("id DESC").Limit(200).Find(&messages).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch messages",
		})
	}
	return c.JSON(messages)
}
