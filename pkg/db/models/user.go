package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bcolabs/fightcards-backend/pkg/enums"
)

// User represents the canonical buyer identity, including the aggregate
// holding value the fan tier is derived from.
type User struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email         string        `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash  string        `gorm:"column:password_hash;not null"`
	DisplayName   string        `gorm:"column:display_name;not null"`
	IsAdmin       bool          `gorm:"column:is_admin;not null;default:false"`
	FanValueCents int64         `gorm:"column:fan_value_cents;not null;default:0"`
	FanTier       enums.FanTier `gorm:"column:fan_tier;not null;default:1"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
