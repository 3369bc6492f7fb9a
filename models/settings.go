package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Setting is a generic key-value store for operator-editable configuration
type Setting struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

// BotConfigKey is the settings key holding the auto-reply configuration
const BotConfigKey = "autoreply_config"

// BotConfig governs the auto-reply bot. It is re-read from the settings
// store on every inbound message, so edits take effect without restart.
type BotConfig struct {
	Enabled bool `json:"enabled"`

	// Caps and pacing
	MaxRepliesPerContact int `json:"max_replies_per_contact"`
	ReplyDelayMs         int `json:"reply_delay_ms"`

	// Only reply when the sender was touched by a campaign within the
	// lookback window
	OnlyIfCampaign bool `json:"only_if_campaign"`
	LookbackDays   int  `json:"lookback_days"`

	// Business hours window; may wrap past midnight (e.g. 22:00-06:00)
	BusinessHoursEnabled bool   `json:"business_hours_enabled"`
	BusinessHoursStart   string `json:"business_hours_start"` // "HH:MM"
	BusinessHoursEnd     string `json:"business_hours_end"`
	Timezone             string `json:"timezone"`

	// Reply templates; {NOMBRE} is replaced with the contact's name
	DefaultReply    string `json:"default_reply"`
	OutOfHoursReply string `json:"out_of_hours_reply"`
	OptOutReply     string `json:"opt_out_reply"`

	// Comma-separated opt-out keywords, matched as case-insensitive substrings
	OptOutKeywords string `json:"opt_out_keywords"`
}

// DefaultBotConfig returns the hardcoded fallback configuration
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Enabled:              false,
		MaxRepliesPerContact: 1,
		ReplyDelayMs:         3000,
		OnlyIfCampaign:       true,
		LookbackDays:         60,
		BusinessHoursEnabled: false,
		BusinessHoursStart:   "09:00",
		BusinessHoursEnd:     "18:00",
		Timezone:             "America/Mexico_City",
		DefaultReply:         "Hola {NOMBRE}, gracias por tu mensaje. En breve te atendemos.",
		OutOfHoursReply:      "Hola {NOMBRE}, gracias por escribirnos. Te respondemos en horario de atención.",
		OptOutReply:          "Entendido, no recibirás más mensajes de nuestra parte.",
		OptOutKeywords:       "baja,stop,no molestar,unsubscribe",
	}
}

// Sanitize clamps numeric fields to sane ranges and falls back to defaults
// for empty strings. Applied on every read and write of the config.
func (bc *BotConfig) Sanitize() {
	def := DefaultBotConfig()

	bc.MaxRepliesPerContact = clampInt(bc.MaxRepliesPerContact, 0, 10)
	bc.ReplyDelayMs = clampInt(bc.ReplyDelayMs, 0, 60000)
	bc.LookbackDays = clampInt(bc.LookbackDays, 1, 365)

	if !validClock(bc.BusinessHoursStart) {
		bc.BusinessHoursStart = def.BusinessHoursStart
	}
	if !validClock(bc.BusinessHoursEnd) {
		bc.BusinessHoursEnd = def.BusinessHoursEnd
	}
	if strings.TrimSpace(bc.Timezone) == "" {
		bc.Timezone = def.Timezone
	}
	if strings.TrimSpace(bc.DefaultReply) == "" {
		bc.DefaultReply = def.DefaultReply
	}
	if strings.TrimSpace(bc.OutOfHoursReply) == "" {
		bc.OutOfHoursReply = def.OutOfHoursReply
	}
	if strings.TrimSpace(bc.OptOutReply) == "" {
		bc.OptOutReply = def.OptOutReply
	}
	if strings.TrimSpace(bc.OptOutKeywords) == "" {
		bc.OptOutKeywords = def.OptOutKeywords
	}
}

// InBusinessHours reports whether t falls inside the configured window,
// evaluated in the configured timezone. Windows wrapping past midnight
// (start > end) are supported.
func (bc *BotConfig) InBusinessHours(t time.Time) bool {
	loc, err := time.LoadLocation(bc.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	minutes := local.Hour()*60 + local.Minute()

	start := clockMinutes(bc.BusinessHoursStart)
	end := clockMinutes(bc.BusinessHoursEnd)

	if start == end {
		return true
	}
	if start < end {
		return minutes >= start && minutes < end
	}
	// wraps past midnight
	return minutes >= start || minutes < end
}

// OptOutKeywordIn returns the first configured opt-out keyword contained in
// body (case-insensitive substring match), or "" when none matches
func (bc *BotConfig) OptOutKeywordIn(body string) string {
	lower := strings.ToLower(body)
	for _, kw := range strings.Split(bc.OptOutKeywords, ",") {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", strings.TrimSpace(s))
	return err == nil
}

func clockMinutes(s string) int {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return t.Hour()*60 + t.Minute()
}
