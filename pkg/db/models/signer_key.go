package models

import "time"

// SignerKey is the trusted voucher verification key. The table holds exactly
// one row; rotation overwrites it in place so every instance sharing the
// database verifies against the same key.
type SignerKey struct {
	ID           int16     `gorm:"column:id;primaryKey;autoIncrement:false"`
	PublicKeyHex string    `gorm:"column:public_key_hex;not null"`
	RotatedAt    time.Time `gorm:"column:rotated_at"`
}
