package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTag(t *testing.T) {
	r := Recipient{Tags: "vip, Cliente-2026,norte"}

	assert.True(t, r.HasTag("vip"))
	assert.True(t, r.HasTag("VIP"))
	assert.True(t, r.HasTag("cliente-2026"))
	assert.True(t, r.HasTag(" norte "))
	assert.False(t, r.HasTag("sur"))
}

func TestAddTagIsIdempotent(t *testing.T) {
	r := Recipient{}

	assert.True(t, r.AddTag("optout"))
	assert.Equal(t, "optout", r.Tags)

	assert.False(t, r.AddTag("OPTOUT"))
	assert.Equal(t, "optout", r.Tags)

	assert.True(t, r.AddTag("vip"))
	assert.Equal(t, "optout,vip", r.Tags)
}

func TestMatchTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     string
		filter   string
		matchAll bool
		want     bool
	}{
		{"empty filter matches everything", "vip", "", false, true},
		{"empty filter matches empty tags", "", "", true, true},
		{"any mode, one hit", "vip,norte", "sur,norte", false, true},
		{"any mode, no hit", "vip", "sur,este", false, false},
		{"all mode, all present", "vip,norte,activo", "vip,norte", true, true},
		{"all mode, one missing", "vip", "vip,norte", true, false},
		{"case insensitive", "VIP", "vip", true, true},
		{"whitespace tolerated", " vip , norte ", "norte", false, true},
		{"filter of only commas matches", "vip", ", ,", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchTags(tt.tags, tt.filter, tt.matchAll))
		})
	}
}

func TestStatusRanksAreMonotonic(t *testing.T) {
	// delivery progress must strictly increase along the happy path
	assert.Less(t, MessageStatusRank(MessagePending), MessageStatusRank(MessageSent))
	assert.Less(t, MessageStatusRank(MessageSent), MessageStatusRank(MessageDelivered))
	assert.Less(t, MessageStatusRank(MessageDelivered), MessageStatusRank(MessageRead))
	// a delivered report outranks a locally recorded failure
	assert.Less(t, MessageStatusRank(MessageFailed), MessageStatusRank(MessageDelivered))

	assert.Less(t, ItemStatusRank(ItemPending), ItemStatusRank(ItemSending))
	assert.Less(t, ItemStatusRank(ItemSending), ItemStatusRank(ItemSent))
	assert.Less(t, ItemStatusRank(ItemSent), ItemStatusRank(ItemDelivered))
	assert.Less(t, ItemStatusRank(ItemDelivered), ItemStatusRank(ItemRead))
	// failed and skipped items are absorbing: no webhook can revive them
	assert.Greater(t, ItemStatusRank(ItemFailed), ItemStatusRank(ItemRead))
	assert.Greater(t, ItemStatusRank(ItemSkipped), ItemStatusRank(ItemRead))
}
