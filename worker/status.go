package worker

import (
	"encoding/json"
	"strings"
	"time"

	"wacast/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StatusUpdate is a normalized provider delivery-status callback
type StatusUpdate struct {
	WaMessageID string
	Status      string // canonical: sent, delivered, read, failed
	Error       string
}

// ExtractStatusUpdates normalizes the several payload shapes the provider
// sends status callbacks in. Unrecognized shapes yield zero updates, never
// an error: the webhook must not crash on junk.
//
// Accepted shapes:
//
//	{"event": "...", "data": {"id": ..., "status": ...}}
//	{"statuses": [{...}, ...]}
//	{"data": {"statuses": [{...}, ...]}}
//	{"data": [{...}, ...]} or {"data": {...}}
func ExtractStatusUpdates(payload []byte) []StatusUpdate {
	var root map[string]interface{}
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil
	}

	var candidates []interface{}

	if arr, ok := root["statuses"].([]interface{}); ok {
		candidates = append(candidates, arr...)
	}

	switch data := root["data"].(type) {
	case map[string]interface{}:
		if arr, ok := data["statuses"].([]interface{}); ok {
			candidates = append(candidates, arr...)
		} else {
			candidates = append(candidates, data)
		}
	case []interface{}:
		candidates = append(candidates, data...)
	}

	// single event+data object with fields at the top level
	if len(candidates) == 0 {
		candidates = append(candidates, root)
	}

	var updates []StatusUpdate
	for _, c := range candidates {
		obj, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		id := stringField(obj, "id", "message_id", "msg_id")
		status := CanonicalStatus(stringField(obj, "status", "state", "ack"))
		if id == "" || status == "" {
			continue
		}
		updates = append(updates, StatusUpdate{
			WaMessageID: id,
			Status:      status,
			Error:       stringField(obj, "error", "reason"),
		})
	}
	return updates
}

// CanonicalStatus maps vendor status strings onto the ledger statuses by
// substring, tolerating variants like "message_delivered" or "READ"
func CanonicalStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "read") || strings.Contains(s, "seen") || strings.Contains(s, "played"):
		return models.MessageRead
	case strings.Contains(s, "deliver"):
		return models.MessageDelivered
	case strings.Contains(s, "sent") || strings.Contains(s, "accept") || strings.Contains(s, "pending"):
		return models.MessageSent
	case strings.Contains(s, "fail") || strings.Contains(s, "error") || strings.Contains(s, "reject"):
		return models.MessageFailed
	default:
		return ""
	}
}

// ApplyStatusUpdates maps normalized callbacks onto the ledger and the
// linked campaign items. Updates only ever move a status forward (monotonic
// rank); late or repeated callbacks are dropped. Returns how many updates
// changed something.
func ApplyStatusUpdates(db *gorm.DB, logger *logrus.Entry, updates []StatusUpdate) int {
	applied := 0
	touched := map[uint]bool{}

	for _, u := range updates {
		var msg models.Message
		if err := db.Where("wa_message_id = ?", u.WaMessageID).First(&msg).Error; err != nil {
			continue // not ours, or not yet recorded
		}

		if models.MessageStatusRank(u.Status) <= models.MessageStatusRank(msg.Status) {
			continue
		}

		fields := map[string]interface{}{"status": u.Status}
		now := time.Now()
		switch u.Status {
		case models.MessageDelivered:
			fields["delivered_at"] = now
		case models.MessageRead:
			fields["read_at"] = now
			if msg.DeliveredAt == nil {
				fields["delivered_at"] = now
			}
		case models.MessageFailed:
			fields["error"] = u.Error
		}

		if err := db.Model(&msg).Updates(fields).Error; err != nil {
			logger.Errorf("message %d: applying status %s: %v", msg.ID, u.Status, err)
			continue
		}
		applied++

		if msg.CampaignItemID != nil {
			propagateItemStatus(db, logger, *msg.CampaignItemID, u.Status, u.Error)
		}
		if msg.CampaignID != nil {
			touched[*msg.CampaignID] = true
		}
	}

	for campaignID := range touched {
		if err := RefreshCampaignCounters(db, campaignID); err != nil {
			logger.Errorf("campaign %d: refreshing counters: %v", campaignID, err)
		}
	}

	return applied
}

// propagateItemStatus upgrades the linked item, honoring the item's own
// monotonic rank (failed and skipped are absorbing and never regress)
func propagateItemStatus(db *gorm.DB, logger *logrus.Entry, itemID uint, status, errText string) {
	var item models.CampaignItem
	if err := db.First(&item, itemID).Error; err != nil {
		return
	}

	itemStatus := status
	if status == models.MessageFailed {
		itemStatus = models.ItemFailed
	}

	if models.ItemStatusRank(itemStatus) <= models.ItemStatusRank(item.Status) {
		return
	}

	fields := map[string]interface{}{"status": itemStatus}
	if itemStatus == models.ItemFailed && errText != "" {
		fields["last_error"] = errText
	}
	if err := db.Model(&item).Updates(fields).Error; err != nil {
		logger.Errorf("item %d: propagating status %s: %v", itemID, itemStatus, err)
	}
}
