package worker

import (
	"testing"

	"wacast/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBotConfigDefaultsWhenAbsent(t *testing.T) {
	db := newTestDB(t)

	cfg := LoadBotConfig(db)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, models.DefaultBotConfig(), cfg)
}

func TestSaveAndLoadBotConfig(t *testing.T) {
	db := newTestDB(t)

	cfg := models.DefaultBotConfig()
	cfg.Enabled = true
	cfg.MaxRepliesPerContact = 3
	cfg.DefaultReply = "Gracias {NOMBRE}"
	require.NoError(t, SaveBotConfig(db, cfg))

	loaded := LoadBotConfig(db)
	assert.True(t, loaded.Enabled)
	assert.Equal(t, 3, loaded.MaxRepliesPerContact)
	assert.Equal(t, "Gracias {NOMBRE}", loaded.DefaultReply)

	// saving again updates in place instead of duplicating the row
	cfg.MaxRepliesPerContact = 5
	require.NoError(t, SaveBotConfig(db, cfg))
	assert.Equal(t, 5, LoadBotConfig(db).MaxRepliesPerContact)

	var count int64
	require.NoError(t, db.Model(&models.Setting{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSaveBotConfigSanitizes(t *testing.T) {
	db := newTestDB(t)

	cfg := models.DefaultBotConfig()
	cfg.MaxRepliesPerContact = 500
	cfg.DefaultReply = "   "
	require.NoError(t, SaveBotConfig(db, cfg))

	loaded := LoadBotConfig(db)
	assert.Equal(t, 10, loaded.MaxRepliesPerContact)
	assert.Equal(t, models.DefaultBotConfig().DefaultReply, loaded.DefaultReply)
}

func TestLoadBotConfigSurvivesCorruptValue(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Setting{Key: models.BotConfigKey, Value: "{broken"}).Error)

	cfg := LoadBotConfig(db)
	assert.Equal(t, models.DefaultBotConfig(), cfg)
}
