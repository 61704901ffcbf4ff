package supply

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/pkg/db/models"
)

// Repository defines persistence operations for the supply ledger tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRecord(ctx context.Context, fighterID int64) (*models.SupplyRecord, error)
	InsertRecord(ctx context.Context, record *models.SupplyRecord) error
	// UpdateSupply raises attendance and cap together, guarded so a stale
	// writer can never lower either value. Returns false when the guard
	// rejected the write.
	UpdateSupply(ctx context.Context, fighterID, attendance, maxSupply int64) (bool, error)
	// RaiseCap lifts max_supply to newCap only if it is a strict increase.
	RaiseCap(ctx context.Context, fighterID, newCap int64) (bool, error)
	InsertSpentNonce(ctx context.Context, nonce *models.SpentNonce) error
	// IncrementMinted adds quantity to minted_count only while the result
	// stays within max_supply (or the cap is unset). Returns false when the
	// mint would overshoot.
	IncrementMinted(ctx context.Context, fighterID, quantity int64) (bool, error)
	CreateUnits(ctx context.Context, units []models.MintedUnit) error
	FindUnit(ctx context.Context, unitRef uuid.UUID) (*models.MintedUnit, error)
	CountUnitsByOwner(ctx context.Context, ownerID uuid.UUID, fighterID int64) (int64, error)
	FindSignerKey(ctx context.Context) (*models.SignerKey, error)
	// SaveSignerKey overwrites the single trusted signer key row.
	SaveSignerKey(ctx context.Context, publicKeyHex string) error
}
