package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignRunning   = "running"
	CampaignPaused    = "paused"
	CampaignDone      = "done"
	CampaignCancelled = "cancelled"
	CampaignFailed    = "failed"
)

// CampaignItem statuses
const (
	ItemPending   = "pending"
	ItemSending   = "sending"
	ItemSent      = "sent"
	ItemDelivered = "delivered"
	ItemRead      = "read"
	ItemFailed    = "failed"
	ItemSkipped   = "skipped"
)

// Campaign represents one bulk WhatsApp send against a snapshot of recipients.
// Campaigns are never deleted; they are the audit trail of what went out.
type Campaign struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Campaign details
	Name    string `gorm:"not null" json:"name"`
	Body    string `gorm:"type:text;not null" json:"body"`
	Channel string `gorm:"default:'whatsapp'" json:"channel"`

	// Target filter snapshot
	BlockID      *uint  `json:"block_id"`
	TagFilter    string `json:"tag_filter"`
	MatchAllTags bool   `gorm:"default:false" json:"match_all_tags"`

	// Pacing policy
	DelayMs    int `gorm:"default:2000" json:"delay_ms"`
	MaxRetries int `gorm:"default:3" json:"max_retries"`

	// Scheduling
	Status     string     `gorm:"default:'running';index" json:"status"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	// Statistics (denormalized, recomputed from item statuses)
	Total            int `gorm:"default:0" json:"total"`
	SentCount        int `gorm:"default:0" json:"sent_count"`
	DeliveredCount   int `gorm:"default:0" json:"delivered_count"`
	ReadCount        int `gorm:"default:0" json:"read_count"`
	FailedCount      int `gorm:"default:0" json:"failed_count"`
	SkippedCount     int `gorm:"default:0" json:"skipped_count"`
	DoneCount        int `gorm:"default:0" json:"done_count"`
	RepliedCount     int `gorm:"default:0" json:"replied_count"`
	AutoRepliedCount int `gorm:"default:0" json:"auto_replied_count"`

	// Relations
	Items []CampaignItem `gorm:"foreignKey:CampaignID" json:"items,omitempty"`
}

// IsTerminal reports whether the campaign will never be picked up again
// without an explicit operator action
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignDone || c.Status == CampaignCancelled || c.Status == CampaignFailed
}

// CampaignItem tracks one recipient's progress within a campaign. Recipient
// details are snapshotted at creation time so later edits to the recipient
// never change what a running campaign sends.
type CampaignItem struct {
	gorm.Model
	CampaignID  uint `gorm:"not null;index:idx_items_claim,priority:1" json:"campaign_id"`
	RecipientID uint `gorm:"index" json:"recipient_id"`

	// Snapshot of the recipient at campaign creation
	Phone   string `json:"phone"`
	Name    string `json:"name"`
	Tags    string `json:"tags"`
	BlockID uint   `json:"block_id"`

	// Delivery state
	Status        string     `gorm:"default:'pending';index:idx_items_claim,priority:2" json:"status"`
	Attempts      int        `gorm:"default:0" json:"attempts"`
	NextAttemptAt *time.Time `gorm:"index:idx_items_claim,priority:3" json:"next_attempt_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	LastError     string     `json:"last_error"`

	// Ledger entry representing the current attempt
	MessageID *uint `gorm:"index" json:"message_id"`

	// Reply tracking, maintained by the auto-reply bot
	ReplyCount      int        `gorm:"default:0" json:"reply_count"`
	FirstReplyAt    *time.Time `json:"first_reply_at"`
	LastReplyAt     *time.Time `json:"last_reply_at"`
	AutoReplyCount  int        `gorm:"default:0" json:"auto_reply_count"`
	LastAutoReplyAt *time.Time `json:"last_auto_reply_at"`

	// Relations
	Campaign Campaign `json:"-"`
}

// ItemStatusRank orders item statuses by delivery progress. Webhook updates
// may only move an item to a higher rank; failed and skipped are absorbing.
func ItemStatusRank(status string) int {
	switch status {
	case ItemRead:
		return 5
	case ItemDelivered:
		return 4
	case ItemSent:
		return 3
	case ItemSending:
		return 2
	case ItemFailed, ItemSkipped:
		return 6 // absorbing: nothing outranks a terminal failure
	default: // pending
		return 1
	}
}
