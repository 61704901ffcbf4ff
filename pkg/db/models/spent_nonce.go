package models

import "time"

// SpentNonce permanently records a consumed voucher nonce. The primary key
// doubles as the replay guard: a second insert of the same nonce fails on
// the unique constraint regardless of the rest of the voucher.
type SpentNonce struct {
	Nonce     string    `gorm:"column:nonce;type:text;primaryKey"`
	FighterID int64     `gorm:"column:fighter_id;not null"`
	SpentAt   time.Time `gorm:"column:spent_at;autoCreateTime"`
}
