package models

import "time"

// Fighter is a sellable catalog item. The numeric ID doubles as the item
// identifier carried inside mint vouchers.
type Fighter struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement:false"`
	Name           string    `gorm:"column:name;not null"`
	Division       string    `gorm:"column:division;not null"`
	Record         string    `gorm:"column:record;not null;default:''"`
	BasePriceCents int64     `gorm:"column:base_price_cents;not null"`
	Active         bool      `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
