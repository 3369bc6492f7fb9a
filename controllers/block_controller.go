package controller

import (
	"log"
	"strings"

	"wacast/models"
	"wacast/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type BlockController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewBlockController(db *gorm.DB, logger *log.Logger) *BlockController {
	return &BlockController{DB: db, Logger: logger}
}

type CreateBlockRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description"`
	Capacity    int    `json:"capacity" validate:"omitempty,min=0"`
}

func (bc *BlockController) CreateBlock(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateBlockRequest
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

	block := models.Block{
		UserID:      user.ID,
		Name:        req.Name,
		Description: req.Description,
		Capacity:    req.Capacity,
	}
	if err := bc.DB.Create(&block).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create block",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(block)
}

func (bc *BlockController) GetBlocks(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var blocks []models.Block
	if err := bc.DB.Where("user_id = ?", user.ID).Find(&blocks).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch blocks",
		})
	}
	return c.JSON(blocks)
}

func (bc *BlockController) GetBlock(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var block models.Block
	if err := bc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&block).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Block not found",
		})
	}
	return c.JSON(block)
}

func (bc *BlockController) DeleteBlock(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var block models.Block
	if err := bc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&block).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Block not found",
		})
	}

	if err := bc.DB.Where("block_id = ?", block.ID).Delete(&models.Recipient{}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete block recipients",
		})
	}
	if err := bc.DB.Delete(&block).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete block",
		})
	}

	return c.JSON(fiber.Map{"message": "Block deleted successfully"})
}

type ImportRecipientRow struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Tags  string `json:"tags"`
}

type ImportRecipientsRequest struct {
	Recipients []ImportRecipientRow `json:"recipients" validate:"required,min=1"`
}

// ImportRecipients bulk-loads contacts into a block. Capacity is enforced
// here, at import time only; campaign creation never re-checks it.
func (bc *BlockController) ImportRecipients(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var block models.Block
	if err := bc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&block).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Block not found",
		})
	}

	var req ImportRecipientsRequest
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

	if block.Capacity > 0 && block.RecipientCount+len(req.Recipients) > block.Capacity {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Import would exceed block capacity",
		})
	}

	imported := 0
	skipped := 0
	for _, row := range req.Recipients {
		phone := utils.NormalizePhone(row.Phone)
		email := strings.TrimSpace(row.Email)
		if phone == "" && email == "" {
			skipped++
			continue
		}
		if email != "" {
			if err := checkmail.ValidateFormat(email); err != nil {
				// keep the contact for WhatsApp, drop the bad address
				email = ""
				if phone == "" {
					skipped++
					continue
				}
			}
		}

		recipient := models.Recipient{
			UserID:  user.ID,
			BlockID: block.ID,
			Name:    strings.TrimSpace(row.Name),
			Phone:   phone,
			Email:   email,
			Tags:    strings.TrimSpace(row.Tags),
		}
		if err := bc.DB.Create(&recipient).Error; err != nil {
			bc.Logger.Printf("Failed to import recipient %q: %v", row.Phone, err)
			skipped++
			continue
		}
		imported++
	}

	if err := bc.DB.Model(&block).
		Update("recipient_count", gorm.Expr("recipient_count + ?", imported)).Error; err != nil {
		bc.Logger.Printf("Failed to update block counter: %v", err)
	}

	return c.JSON(fiber.Map{
		"imported": imported,
		"skipped":  skipped,
	})
}

func (bc *BlockController) GetRecipients(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := bc.DB.Where("user_id = ?", user.ID)
	if blockID := c.Query("block_id"); blockID != "" {
		query = query.Where("block_id = ?", utils.ParseUint(blockID))
	}
	if tag := c.Query("tag"); tag != "" {
		query = query.Where("LOWER(tags) LIKE ?", "%"+strings.ToLower(tag)+"%")
	}

	var recipients []models.Recipient
	if err := query.Limit(500).Find(&recipients).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch recipients",
		})
	}
	return c.JSON(recipients)
}

func (bc *BlockController) UpdateRecipient(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var recipient models.Recipient
	if err := bc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&recipient).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Recipient not found",
		})
	}

	var req ImportRecipientRow
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	recipient.Name = strings.TrimSpace(req.Name)
	recipient.Phone = utils.NormalizePhone(req.Phone)
	recipient.Email = strings.TrimSpace(req.Email)
	recipient.Tags = strings.TrimSpace(req.Tags)

	if err := bc.DB.Save(&recipient).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update recipient",
		})
	}
	return c.JSON(recipient)
}

func (bc *BlockController) DeleteRecipient(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var recipient models.Recipient
	if err := bc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&recipient).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Recipient not found",
		})
	}

	if err := bc.DB.Delete(&recipient).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete recipient",
		})
	}
	if err := bc.DB.Model(&models.Block{}).Where("id = ?", recipient.BlockID).
		Update("recipient_count", gorm.Expr("recipient_count - 1")).Error; err != nil {
		bc.Logger.Printf("Failed to update block counter: %v", err)
	}

	return c.JSON(fiber.Map{"message": "Recipient deleted successfully"})
}
