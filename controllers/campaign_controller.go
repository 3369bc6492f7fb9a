package controller

import (
	"log"
	"time"

	"wacast/models"
	"wacast/utils"
	"wacast/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

type CampaignController struct {
	DB         *gorm.DB
	Logger     *log.Logger
	Dispatcher *worker.Dispatcher
}

func NewCampaignController(db *gorm.DB, logger *log.Logger, dispatcher *worker.Dispatcher) *CampaignController {
	return &CampaignController{DB: db, Logger: logger, Dispatcher: dispatcher}
}

type CreateCampaignRequest struct {
	Name         string `json:"name" validate:"required,max=160"`
	Body         string `json:"body" validate:"required"`
	BlockID      *uint  `json:"block_id"`
	TagFilter    string `json:"tag_filter"`
	MatchAllTags bool   `json:"match_all_tags"`
	DelayMs      int    `json:"delay_ms"`
	MaxRetries   int    `json:"max_retries"`
}

// CreateCampaign snapshots the targeted recipients into campaign items and
// starts the campaign immediately
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateCampaignRequest
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

	recipients, err := resolveRecipients(cc.DB, user.ID, req.BlockID, req.TagFilter, req.MatchAllTags)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve recipients",
		})
	}
	if len(recipients) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No recipients match the target filter",
		})
	}

	campaign := models.Campaign{
		UserID:       user.ID,
		Name:         req.Name,
		Body:         req.Body,
		BlockID:      req.BlockID,
		TagFilter:    req.TagFilter,
		MatchAllTags: req.MatchAllTags,
		DelayMs:      clamp(req.DelayMs, 250, 60000),
		MaxRetries:   clamp(req.MaxRetries, 0, worker.MaxRetriesCap),
		Status:       models.CampaignRunning,
		StartedAt:    utils.Pointer(time.Now()),
		Total:        len(recipients),
	}

	err = cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&campaign).Error; err != nil {
			return err
		}

		items := make([]models.CampaignItem, 0, len(recipients))
		skipped := 0
		for _, r := range recipients {
			item := models.CampaignItem{
				CampaignID:  campaign.ID,
				RecipientID: r.ID,
				Phone:       utils.NormalizePhone(r.Phone),
				Name:        r.Name,
				Tags:        r.Tags,
				BlockID:     r.BlockID,
				Status:      models.ItemPending,
			}
			if item.Phone == "" {
				// no usable address; skipped items never retry
				item.Status = models.ItemSkipped
				item.LastError = "no usable address"
				skipped++
			}
			items = append(items, item)
		}

		if err := tx.CreateInBatches(items, 200).Error; err != nil {
			return err
		}

		return tx.Model(&campaign).Updates(map[string]interface{}{
			"skipped_count": skipped,
			"done_count":    skipped,
		}).Error
	})
	if err != nil {
		cc.Logger.Printf("Failed to create campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	cc.Dispatcher.Trigger()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ok": true,
		"id": campaign.ID,
	})
}

func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaigns []models.Campaign
	if err := cc.DB.Where("user_id = ?", user.ID).
		Order("id DESC").
		Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}
	return c.JSON(campaigns)
}

// GetCampaign returns the campaign with a capped page of its most recently
// touched items
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	var items []models.CampaignItem
	if err := cc.DB.Where("campaign_id = ?", campaign.ID).
		Order("updated_at DESC").
		Limit(80).
		Find(&items).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaign items",
		})
	}

	return c.JSON(fiber.Map{
		"campaign": campaign,
		"items":    items,
	})
}

// ResumeCampaign puts a paused or cancelled campaign back into the loop
func (cc *CampaignController) ResumeCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if campaign.Status != models.CampaignRunning {
		if err := cc.DB.Model(&campaign).Updates(map[string]interface{}{
			"status":      models.CampaignRunning,
			"finished_at": nil,
		}).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to resume campaign",
			})
		}
	}

	cc.Dispatcher.Trigger()

	return c.JSON(fiber.Map{"ok": true})
}

// CancelCampaign stops further sends. Messages already handed to the
// provider are not recalled; their webhook updates still land on the ledger.
func (cc *CampaignController) CancelCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	if err := cc.DB.Model(&campaign).Updates(map[string]interface{}{
		"status":      models.CampaignCancelled,
		"finished_at": time.Now(),
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel campaign",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// RetryFailed resets every failed item back to pending with a fresh retry
// budget and resumes the campaign
func (cc *CampaignController) RetryFailed(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	res := cc.DB.Model(&models.CampaignItem{}).
		Where("campaign_id = ? AND status = ?", campaign.ID, models.ItemFailed).
		Updates(map[string]interface{}{
			"status":          models.ItemPending,
			"attempts":        0,
			"next_attempt_at": time.Now(),
			"last_error":      "",
		})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reset items",
		})
	}

	if err := cc.DB.Model(&campaign).Updates(map[string]interface{}{
		"status":      models.CampaignRunning,
		"finished_at": nil,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resume campaign",
		})
	}

	if err := worker.RefreshCampaignCounters(cc.DB, campaign.ID); err != nil {
		cc.Logger.Printf("Failed to refresh counters: %v", err)
	}

	cc.Dispatcher.Trigger()

	return c.JSON(fiber.Map{
		"ok":    true,
		"reset": res.RowsAffected,
	})
}

// HandleCampaignProgressWS streams live campaign counters to the UI until
// the campaign reaches a terminal state or the client goes away
func (cc *CampaignController) HandleCampaignProgressWS(conn *websocket.Conn) {
	defer conn.Close()

	campaignID := utils.ParseUint(conn.Params("id"))
	for {
		var campaign models.Campaign
		if err := cc.DB.First(&campaign, campaignID).Error; err != nil {
			return
		}

		if err := conn.WriteJSON(fiber.Map{
			"status":          campaign.Status,
			"total":           campaign.Total,
			"sent_count":      campaign.SentCount,
			"delivered_count": campaign.DeliveredCount,
			"read_count":      campaign.ReadCount,
			"failed_count":    campaign.FailedCount,
			"skipped_count":   campaign.SkippedCount,
			"done_count":      campaign.DoneCount,
			"replied_count":   campaign.RepliedCount,
		}); err != nil {
			return
		}

		if campaign.IsTerminal() {
			return
		}
		time.Sleep(2 * time.Second)
	}
}

// resolveRecipients applies the block/tag target filter. Tag matching is
// case-insensitive; matchAll switches between ALL and ANY semantics.
func resolveRecipients(db *gorm.DB, userID uint, blockID *uint, tagFilter string, matchAll bool) ([]models.Recipient, error) {
	query := db.Where("user_id = ?", userID)
	if blockID != nil {
		query = query.Where("block_id = ?", *blockID)
	}

	var all []models.Recipient
	if err := query.Find(&all).Error; err != nil {
		return nil, err
	}

	if tagFilter == "" {
		return all, nil
	}

	matched := make([]models.Recipient, 0, len(all))
	for _, r := range all {
		if models.MatchTags(r.Tags, tagFilter, matchAll) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
