// Package models contains the database model definitions.
package models

import (
	"time"
)

// Setting represents one persisted runtime setting (the EEPROM analogue:
// universe, channel count and frame delay survive a restart).
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }

// Setting keys used by the bridge.
const (
	SettingUniverse = "universe"
	SettingChannels = "channels"
	SettingDelayMS  = "delay_ms"
)
