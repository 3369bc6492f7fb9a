package models

import (
	"strings"

	"gorm.io/gorm"
)

// Block represents a named, capacity-bounded group of recipients used for
// targeting and quota management
type Block struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Capacity    int    `gorm:"default:0" json:"capacity"` // 0 = unlimited; checked at import time only

	// Statistics
	RecipientCount int `gorm:"default:0" json:"recipient_count"`

	// Relations
	Recipients []Recipient `gorm:"foreignKey:BlockID" json:"recipients,omitempty"`
}

// Recipient represents a single contact targeted by campaigns
type Recipient struct {
	gorm.Model
	UserID  uint `gorm:"index" json:"user_id"`
	BlockID uint `gorm:"not null;index" json:"block_id"`

	Name  string `json:"name"`
	Phone string `gorm:"index" json:"phone"`
	Email string `json:"email"`

	// Comma-separated tag list, matched case-insensitively
	Tags string `json:"tags"`

	// Relations
	Block Block `gorm:"foreignKey:BlockID" json:"-"`
}

// HasTag reports whether the recipient carries the given tag (case-insensitive)
func (r *Recipient) HasTag(tag string) bool {
	for _, t := range strings.Split(r.Tags, ",") {
		if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(tag)) {
			return true
		}
	}
	return false
}

// AddTag appends a tag to the recipient's tag list if not already present
func (r *Recipient) AddTag(tag string) bool {
	if r.HasTag(tag) {
		return false
	}
	if strings.TrimSpace(r.Tags) == "" {
		r.Tags = tag
	} else {
		r.Tags = r.Tags + "," + tag
	}
	return true
}

// MatchTags checks a comma-separated tag list against a comma-separated
// filter. With matchAll every filter tag must be present, otherwise one
// match is enough. An empty filter matches everything.
func MatchTags(tags, filter string, matchAll bool) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}

	have := map[string]bool{}
	for _, t := range strings.Split(tags, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			have[t] = true
		}
	}

	matched := 0
	wanted := 0
	for _, f := range strings.Split(filter, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		wanted++
		if have[f] {
			matched++
		}
	}

	if wanted == 0 {
		return true
	}
	if matchAll {
		return matched == wanted
	}
	return matched > 0
}
