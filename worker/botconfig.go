package worker

import (
	"encoding/json"
	"errors"

	"wacast/models"

	"gorm.io/gorm"
)

// LoadBotConfig reads the auto-reply configuration from the settings store,
// falling back to defaults when absent or unparseable. Called on every
// inbound message so operator edits take effect without a restart.
func LoadBotConfig(db *gorm.DB) models.BotConfig {
	cfg := models.DefaultBotConfig()

	var setting models.Setting
	err := db.Where("key = ?", models.BotConfigKey).First(&setting).Error
	if err == nil {
		_ = json.Unmarshal([]byte(setting.Value), &cfg)
	}

	cfg.Sanitize()
	return cfg
}

// SaveBotConfig sanitizes and persists the auto-reply configuration
func SaveBotConfig(db *gorm.DB, cfg models.BotConfig) error {
	cfg.Sanitize()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	var setting models.Setting
	err = db.Where("key = ?", models.BotConfigKey).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&models.Setting{Key: models.BotConfigKey, Value: string(raw)}).Error
	}
	if err != nil {
		return err
	}

	return db.Model(&setting).Update("value", string(raw)).Error
}
