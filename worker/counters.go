package worker

import (
	"wacast/models"

	"gorm.io/gorm"
)

// RefreshCampaignCounters recomputes every campaign aggregate from the item
// table in one pass. Recomputing instead of incrementing keeps the counters
// consistent no matter how dispatch-loop and webhook updates interleave.
func RefreshCampaignCounters(db *gorm.DB, campaignID uint) error {
	var rows []struct {
		Status string
		N      int
	}
	if err := db.Model(&models.CampaignItem{}).
		Select("status, COUNT(*) AS n").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}

	byStatus := map[string]int{}
	total := 0
	for _, r := range rows {
		byStatus[r.Status] = r.N
		total += r.N
	}

	read := byStatus[models.ItemRead]
	delivered := byStatus[models.ItemDelivered] + read
	sent := byStatus[models.ItemSent] + delivered
	failed := byStatus[models.ItemFailed]
	skipped := byStatus[models.ItemSkipped]
	done := total - byStatus[models.ItemPending] - byStatus[models.ItemSending]

	var replied int64
	if err := db.Model(&models.CampaignItem{}).
		Where("campaign_id = ? AND first_reply_at IS NOT NULL", campaignID).
		Count(&replied).Error; err != nil {
		return err
	}

	var autoReplied struct{ N int }
	if err := db.Model(&models.CampaignItem{}).
		Select("COALESCE(SUM(auto_reply_count), 0) AS n").
		Where("campaign_id = ?", campaignID).
		Scan(&autoReplied).Error; err != nil {
		return err
	}

	return db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]interface{}{
			"total":              total,
			"sent_count":         sent,
			"delivered_count":    delivered,
			"read_count":         read,
			"failed_count":       failed,
			"skipped_count":      skipped,
			"done_count":         done,
			"replied_count":      int(replied),
			"auto_replied_count": autoReplied.N,
		}).Error
}
