package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Receipt is the immutable proof of purchase written once per minted order.
// The unique order index enforces the one-receipt-per-order invariant at the
// storage boundary.
type Receipt struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	UserID           uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	LineItems        json.RawMessage `gorm:"column:line_items;type:jsonb;not null"`
	TotalCents       int64           `gorm:"column:total_cents;not null"`
	ExternalMintRef  string          `gorm:"column:external_mint_ref;not null"`
	PaymentReference *string         `gorm:"column:payment_reference"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}
