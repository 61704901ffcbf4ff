package models

import "time"

// SupplyRecord tracks the attendance-derived supply cap and minted count for
// one fighter. Attendance and max supply only ever increase; minted count is
// incremented atomically by the supply ledger. MaxSupply 0 means unlimited.
type SupplyRecord struct {
	FighterID          int64     `gorm:"column:fighter_id;primaryKey;autoIncrement:false"`
	RecordedAttendance int64     `gorm:"column:recorded_attendance;not null;default:0"`
	MaxSupply          int64     `gorm:"column:max_supply;not null;default:0"`
	MintedCount        int64     `gorm:"column:minted_count;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
