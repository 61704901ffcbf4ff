package models

import (
	"time"

	"github.com/google/uuid"
)

// MintedUnit is one issued card unit. Units minted by the same voucher share
// a MintRef; each unit keeps its own reference for ownership queries.
type MintedUnit struct {
	UnitRef     uuid.UUID `gorm:"column:unit_ref;type:uuid;default:gen_random_uuid();primaryKey"`
	MintRef     string    `gorm:"column:mint_ref;not null;index"`
	FighterID   int64     `gorm:"column:fighter_id;not null;index"`
	OwnerUserID uuid.UUID `gorm:"column:owner_user_id;type:uuid;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
