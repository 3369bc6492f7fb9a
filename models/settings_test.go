package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBotConfigSanitizeClamps(t *testing.T) {
	cfg := BotConfig{
		MaxRepliesPerContact: 99,
		ReplyDelayMs:         -5,
		LookbackDays:         0,
		BusinessHoursStart:   "25:99",
		Timezone:             "  ",
	}
	cfg.Sanitize()

	assert.Equal(t, 10, cfg.MaxRepliesPerContact)
	assert.Equal(t, 0, cfg.ReplyDelayMs)
	assert.Equal(t, 1, cfg.LookbackDays)
	assert.Equal(t, "09:00", cfg.BusinessHoursStart)
	assert.Equal(t, "America/Mexico_City", cfg.Timezone)
	assert.NotEmpty(t, cfg.DefaultReply)
	assert.NotEmpty(t, cfg.OptOutKeywords)
}

func TestInBusinessHours(t *testing.T) {
	cfg := DefaultBotConfig()
	cfg.Timezone = "UTC"
	cfg.BusinessHoursStart = "09:00"
	cfg.BusinessHoursEnd = "18:00"

	at := func(hour, min int) time.Time {
		return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
	}

	assert.True(t, cfg.InBusinessHours(at(9, 0)))
	assert.True(t, cfg.InBusinessHours(at(17, 59)))
	assert.False(t, cfg.InBusinessHours(at(18, 0)))
	assert.False(t, cfg.InBusinessHours(at(8, 59)))
	assert.False(t, cfg.InBusinessHours(at(23, 30)))
}

func TestInBusinessHoursWrapsPastMidnight(t *testing.T) {
	cfg := DefaultBotConfig()
	cfg.Timezone = "UTC"
	cfg.BusinessHoursStart = "22:00"
	cfg.BusinessHoursEnd = "06:00"

	at := func(hour, min int) time.Time {
		return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
	}

	assert.True(t, cfg.InBusinessHours(at(23, 0)))
	assert.True(t, cfg.InBusinessHours(at(2, 0)))
	assert.True(t, cfg.InBusinessHours(at(5, 59)))
	assert.False(t, cfg.InBusinessHours(at(6, 0)))
	assert.False(t, cfg.InBusinessHours(at(12, 0)))
	assert.False(t, cfg.InBusinessHours(at(21, 59)))
}

func TestInBusinessHoursEqualBoundsAlwaysOpen(t *testing.T) {
	cfg := DefaultBotConfig()
	cfg.Timezone = "UTC"
	cfg.BusinessHoursStart = "09:00"
	cfg.BusinessHoursEnd = "09:00"

	assert.True(t, cfg.InBusinessHours(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)))
}

func TestOptOutKeywordIn(t *testing.T) {
	cfg := DefaultBotConfig()

	assert.Equal(t, "baja", cfg.OptOutKeywordIn("BAJA por favor"))
	assert.Equal(t, "stop", cfg.OptOutKeywordIn("Stop!"))
	assert.Equal(t, "no molestar", cfg.OptOutKeywordIn("favor de NO MOLESTAR"))
	assert.Equal(t, "", cfg.OptOutKeywordIn("hola, me interesa"))
	assert.Equal(t, "", cfg.OptOutKeywordIn(""))
}
