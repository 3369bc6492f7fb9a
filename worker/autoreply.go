package worker

import (
	"encoding/json"
	"strings"
	"time"

	"wacast/models"
	"wacast/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InboundText is one normalized inbound message from a webhook payload
type InboundText struct {
	ID     string
	From   string
	Body   string
	FromMe bool
}

// InboundSummary reports what one webhook delivery produced
type InboundSummary struct {
	Processed int `json:"processed"`
	Replied   int `json:"replied"`
}

// AutoReplier reacts to inbound messages with bounded, policy-governed
// auto-responses, writing through the same gateway and delivery ledger as
// campaign sends
type AutoReplier struct {
	DB      *gorm.DB
	Gateway Gateway
	Logger  *logrus.Entry
}

func NewAutoReplier(db *gorm.DB, gateway Gateway, logger *logrus.Entry) *AutoReplier {
	return &AutoReplier{DB: db, Gateway: gateway, Logger: logger}
}

// ExtractInboundMessages normalizes the provider's inbound-message payload
// shapes. Field names vary by vendor and message kind, so every known
// alternative is tried.
func ExtractInboundMessages(payload []byte) []InboundText {
	var root map[string]interface{}
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil
	}

	var candidates []interface{}
	if arr, ok := root["messages"].([]interface{}); ok {
		candidates = append(candidates, arr...)
	}
	if data, ok := root["data"].(map[string]interface{}); ok {
		if arr, ok := data["messages"].([]interface{}); ok {
			candidates = append(candidates, arr...)
		}
	}
	if obj, ok := root["message"].(map[string]interface{}); ok {
		candidates = append(candidates, obj)
	}

	var out []InboundText
	for _, c := range candidates {
		obj, ok := c.(map[string]interface{})
		if !ok {
			continue
		}

		m := InboundText{
			ID:   stringField(obj, "id", "message_id"),
			From: stringField(obj, "from", "author", "sender", "chat_id"),
			Body: stringField(obj, "body", "caption", "content"),
		}
		if text, ok := obj["text"].(map[string]interface{}); ok && m.Body == "" {
			m.Body = stringField(text, "body")
		}
		if v, ok := obj["from_me"].(bool); ok {
			m.FromMe = v
		} else if v, ok := obj["fromMe"].(bool); ok {
			m.FromMe = v
		}

		if m.ID == "" || m.From == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// HandleInbound processes every message in one webhook delivery. A failure
// on one message never stops the others.
func (ar *AutoReplier) HandleInbound(payload []byte) InboundSummary {
	summary := InboundSummary{}

	for _, m := range ExtractInboundMessages(payload) {
		if m.FromMe {
			// never react to our own outgoing traffic
			continue
		}
		processed, replied := ar.processMessage(m)
		if processed {
			summary.Processed++
		}
		if replied {
			summary.Replied++
		}
	}

	return summary
}

func (ar *AutoReplier) processMessage(m InboundText) (processed, replied bool) {
	phone := senderPhone(m.From)

	inbound := &models.InboundMessage{
		WaMessageID: m.ID,
		From:        phone,
		Body:        m.Body,
	}
	if err := ar.DB.Create(inbound).Error; err != nil {
		if IsDuplicateErr(err) {
			// webhook redelivery; already handled
			return false, false
		}
		ar.Logger.Errorf("recording inbound %s: %v", m.ID, err)
		return false, false
	}

	cfg := LoadBotConfig(ar.DB)
	if !cfg.Enabled {
		return true, false
	}

	// associate the message with the most recent campaign touch for this
	// sender inside the lookback window
	item := ar.recentItemFor(phone, cfg.LookbackDays)
	if item != nil {
		ar.recordReply(inbound, item)
	}

	if kw := cfg.OptOutKeywordIn(m.Body); kw != "" {
		ar.Logger.WithFields(logrus.Fields{"from": phone, "keyword": kw}).Info("opt-out request")
		ar.handleOptOut(inbound, item, phone, cfg)
		return true, false
	}

	if item == nil && cfg.OnlyIfCampaign {
		return true, false
	}
	if item != nil && item.AutoReplyCount >= cfg.MaxRepliesPerContact {
		return true, false
	}

	template := cfg.DefaultReply
	if cfg.BusinessHoursEnabled && !cfg.InBusinessHours(time.Now()) {
		template = cfg.OutOfHoursReply
	}

	name := ""
	if item != nil {
		name = item.Name
	}
	body := utils.RenderTemplate(template, name)

	if cfg.ReplyDelayMs > 0 {
		// a beat of delay reads less like a machine
		time.Sleep(time.Duration(cfg.ReplyDelayMs) * time.Millisecond)
	}

	if ar.sendReply(inbound, item, phone, body) {
		return true, true
	}
	return true, false
}

// recordReply updates the item's reply tracking and links the inbound
// message to it in one transaction
func (ar *AutoReplier) recordReply(inbound *models.InboundMessage, item *models.CampaignItem) {
	now := time.Now()

	err := ar.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"reply_count":   gorm.Expr("reply_count + 1"),
			"last_reply_at": now,
		}
		if item.FirstReplyAt == nil {
			updates["first_reply_at"] = now
		}
		if err := tx.Model(&models.CampaignItem{}).
			Where("id = ?", item.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		return tx.Model(inbound).Update("campaign_item_id", item.ID).Error
	})
	if err != nil {
		ar.Logger.Errorf("item %d: recording reply: %v", item.ID, err)
		return
	}

	if err := RefreshCampaignCounters(ar.DB, item.CampaignID); err != nil {
		ar.Logger.Errorf("campaign %d: refreshing counters: %v", item.CampaignID, err)
	}
}

// handleOptOut tags the recipient and acknowledges. Opt-out acknowledgements
// bypass the reply cap and business hours.
func (ar *AutoReplier) handleOptOut(inbound *models.InboundMessage, item *models.CampaignItem, phone string, cfg models.BotConfig) {
	var recipient models.Recipient
	found := false
	if item != nil && item.RecipientID != 0 {
		found = ar.DB.First(&recipient, item.RecipientID).Error == nil
	}
	if !found {
		found = ar.DB.Where("phone = ?", phone).First(&recipient).Error == nil
	}

	if found && recipient.AddTag("optout") {
		if err := ar.DB.Model(&recipient).Update("tags", recipient.Tags).Error; err != nil {
			ar.Logger.Errorf("recipient %d: tagging optout: %v", recipient.ID, err)
		}
	}

	name := ""
	if item != nil {
		name = item.Name
	} else if found {
		name = recipient.Name
	}

	ar.sendReply(inbound, item, phone, utils.RenderTemplate(cfg.OptOutReply, name))
}

// recentItemFor finds the newest campaign item addressed to the sender
// within the lookback window
func (ar *AutoReplier) recentItemFor(phone string, lookbackDays int) *models.CampaignItem {
	cutoff := time.Now().AddDate(0, 0, -lookbackDays)

	var item models.CampaignItem
	err := ar.DB.Where("phone = ? AND created_at >= ?", phone, cutoff).
		Order("id DESC").
		First(&item).Error
	if err != nil {
		return nil
	}
	return &item
}

// sendReply records the auto-response through the gateway and the delivery
// ledger exactly as a manual send would. At most once per trigger: failures
// are recorded but never retried or queued.
func (ar *AutoReplier) sendReply(inbound *models.InboundMessage, item *models.CampaignItem, phone, body string) bool {
	if !ar.Gateway.IsConfigured() {
		ar.Logger.Warn("gateway not configured, skipping auto-reply")
		return false
	}

	msg := &models.Message{
		To:        phone,
		Body:      body,
		Status:    models.MessagePending,
		Source:    models.SourceAutoReply,
		ClientRef: "autoreply:" + uuid.New().String(),
	}
	if item != nil {
		msg.CampaignID = &item.CampaignID
		msg.CampaignItemID = &item.ID
	}
	if err := ar.DB.Create(msg).Error; err != nil {
		ar.Logger.Errorf("creating auto-reply ledger entry: %v", err)
		return false
	}

	waID, err := ar.Gateway.SendText(phone, body)
	if err != nil {
		ar.DB.Model(msg).Updates(map[string]interface{}{
			"status": models.MessageFailed,
			"error":  err.Error(),
		})
		ar.Logger.Errorf("auto-reply to %s failed: %v", phone, err)
		return false
	}

	ar.DB.Model(msg).Updates(map[string]interface{}{
		"status":        models.MessageSent,
		"wa_message_id": waID,
		"sent_at":       time.Now(),
	})

	if item != nil {
		ar.DB.Model(&models.CampaignItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]interface{}{
				"auto_reply_count":   gorm.Expr("auto_reply_count + 1"),
				"last_auto_reply_at": time.Now(),
			})
		ar.DB.Model(inbound).Update("auto_replied", true)
		if err := RefreshCampaignCounters(ar.DB, item.CampaignID); err != nil {
			ar.Logger.Errorf("campaign %d: refreshing counters: %v", item.CampaignID, err)
		}
	}

	return true
}

// senderPhone strips the JID suffix and normalizes an inbound sender
// address ("521234567890@s.whatsapp.net" -> "521234567890")
func senderPhone(from string) string {
	if i := strings.Index(from, "@"); i >= 0 {
		from = from[:i]
	}
	return utils.NormalizePhone(from)
}

// stringField returns the first non-empty string among the given keys
func stringField(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
