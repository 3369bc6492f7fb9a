package controller

import (
	"log"

	"wacast/models"
	"wacast/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type EmailController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Mailer *utils.Mailer
}

func NewEmailController(db *gorm.DB, logger *log.Logger, mailer *utils.Mailer) *EmailController {
	return &EmailController{DB: db, Logger: logger, Mailer: mailer}
}

type EmailBlastRequest struct {
	Subject      string `json:"subject" validate:"required,max=200"`
	Body         string `json:"body" validate:"required"`
	BlockID      *uint  `json:"block_id"`
	TagFilter    string `json:"tag_filter"`
	MatchAllTags bool   `json:"match_all_tags"`
}

// SendEmailBlast fires a one-shot email to every addressable recipient in
// the target filter. Delivery is best-effort in the background; email has no
// ledger or retry machinery, that belongs to the WhatsApp path.
func (ec *EmailController) SendEmailBlast(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req EmailBlastRequest
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

	if !ec.Mailer.IsConfigured() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "SMTP is not configured",
		})
	}

	recipients, err := resolveRecipients(ec.DB, user.ID, req.BlockID, req.TagFilter, req.MatchAllTags)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve recipients",
		})
	}

	targets := make([]models.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if r.Email != "" {
			targets = append(targets, r)
		}
	}
	if len(targets) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No recipients with an email address match the target filter",
		})
	}

	go func() {
		sent, failed := 0, 0
		for _, r := range targets {
			body := utils.RenderTemplate(req.Body, r.Name)
			if err := ec.Mailer.Send(r.Email, req.Subject, body); err != nil {
				ec.Logger.Printf("Email to %s failed: %v", r.Email, err)
				failed++
				continue
			}
			sent++
		}
		ec.Logger.Printf("Email blast finished: %d sent, %d failed", sent, failed)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ok":     true,
		"queued": len(targets),
	})
}
