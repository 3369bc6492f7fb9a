package models

import (
	"time"

	"gorm.io/gorm"
)

// Message (ledger) statuses
const (
	MessagePending   = "pending"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
	MessageFailed    = "failed"
)

// Message sources
const (
	SourceCampaign  = "campaign"
	SourceManual    = "manual"
	SourceAutoReply = "autoreply"
)

// Message is the delivery ledger: one row per physical outbound send attempt.
// The unique client_ref is the idempotency token that guarantees a crashed
// and retried attempt can detect a prior send instead of double-sending.
type Message struct {
	gorm.Model

	To     string `gorm:"not null;index" json:"to"`
	Body   string `gorm:"type:text" json:"body"`
	Status string `gorm:"default:'pending';index" json:"status"`
	Source string `gorm:"default:'manual'" json:"source"`

	// Idempotency token; for campaign attempts it is
	// campaign:<campaignID>:<itemID>:<attempt>
	ClientRef string `gorm:"uniqueIndex;not null" json:"client_ref"`

	// Originating campaign item, when any
	CampaignID     *uint `gorm:"index" json:"campaign_id"`
	CampaignItemID *uint `gorm:"index" json:"campaign_item_id"`

	// Provider message id, set once the gateway accepts the send
	WaMessageID string `gorm:"index" json:"wa_message_id"`

	SentAt      *time.Time `json:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at"`
	Error       string     `json:"error"`
}

// MessageStatusRank orders ledger statuses so that webhook callbacks can
// only ever move a message forward (a late "sent" after "read" is dropped).
// A "delivered" report does outrank a locally recorded failure.
func MessageStatusRank(status string) int {
	switch status {
	case MessageRead:
		return 4
	case MessageDelivered:
		return 3
	case MessageSent:
		return 2
	case MessageFailed:
		return 1
	default: // pending
		return 0
	}
}

// WebhookLog is an append-only audit of every inbound webhook payload,
// kept for forensic replay even when the payload is unparseable
type WebhookLog struct {
	gorm.Model

	EventType   string `json:"event_type"`
	WaMessageID string `gorm:"index" json:"wa_message_id"`
	Status      string `json:"status"`
	Payload     string `gorm:"type:text" json:"payload"`
}

// InboundMessage records a message received from a contact. The unique
// wa_message_id is the bot's sole dedupe guard against webhook redelivery.
type InboundMessage struct {
	gorm.Model

	WaMessageID string `gorm:"uniqueIndex;not null" json:"wa_message_id"`
	From        string `gorm:"index" json:"from"`
	Body        string `gorm:"type:text" json:"body"`

	CampaignItemID *uint `gorm:"index" json:"campaign_item_id"`
	AutoReplied    bool  `gorm:"default:false" json:"auto_replied"`
}
