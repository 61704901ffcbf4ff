package models

import (
	"time"

	"github.com/google/uuid"
)

// Holding is the per-(user, fighter) position. AverageCostCents is the
// volume-weighted mean of every settlement for the pair and is only ever
// recomputed when quantity increases. Zero-quantity holdings are retained.
type Holding struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_holdings_user_fighter"`
	FighterID        int64     `gorm:"column:fighter_id;not null;uniqueIndex:idx_holdings_user_fighter"`
	Quantity         int64     `gorm:"column:quantity;not null;default:0"`
	AverageCostCents int64     `gorm:"column:average_cost_cents;not null;default:0"`
	LastUpdatedAt    time.Time `gorm:"column:last_updated_at;autoUpdateTime"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}
