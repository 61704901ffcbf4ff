package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bcolabs/fightcards-backend/pkg/enums"
)

// Order is one checkout attempt. Status moves created -> paid -> minted (or
// failed); transitions happen through conditional writes keyed on the current
// status so replayed events can never advance an order twice.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	FighterID         int64             `gorm:"column:fighter_id;not null"`
	Quantity          int               `gorm:"column:quantity;not null"`
	UnitPriceCents    int64             `gorm:"column:unit_price_cents;not null"`
	Status            enums.OrderStatus `gorm:"column:status;not null;default:'created';index"`
	PaymentReference  *string           `gorm:"column:payment_reference"`
	CheckoutSessionID *string           `gorm:"column:checkout_session_id"`
	MintRef           *string           `gorm:"column:mint_ref"`
	Settled           bool              `gorm:"column:settled;not null;default:false"`
	FailureReason     *string           `gorm:"column:failure_reason"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
