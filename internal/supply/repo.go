package supply

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bcolabs/fightcards-backend/pkg/db/models"
)

// signerKeyRowID pins the signer_keys table to a single row.
const signerKeyRowID = 1

type repository struct {
	db *gorm.DB
}

// NewRepository builds a supply repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindRecord(ctx context.Context, fighterID int64) (*models.SupplyRecord, error) {
	var record models.SupplyRecord
	err := r.db.WithContext(ctx).
		Where("fighter_id = ?", fighterID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) InsertRecord(ctx context.Context, record *models.SupplyRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) UpdateSupply(ctx context.Context, fighterID, attendance, maxSupply int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SupplyRecord{}).
		Where("fighter_id = ? AND recorded_attendance <= ? AND max_supply <= ?", fighterID, attendance, maxSupply).
		Updates(map[string]any{
			"recorded_attendance": attendance,
			"max_supply":          maxSupply,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) RaiseCap(ctx context.Context, fighterID, newCap int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SupplyRecord{}).
		Where("fighter_id = ? AND max_supply < ?", fighterID, newCap).
		Update("max_supply", newCap)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) InsertSpentNonce(ctx context.Context, nonce *models.SpentNonce) error {
	return r.db.WithContext(ctx).Create(nonce).Error
}

func (r *repository) IncrementMinted(ctx context.Context, fighterID, quantity int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SupplyRecord{}).
		Where("fighter_id = ? AND (max_supply = 0 OR minted_count + ? <= max_supply)", fighterID, quantity).
		Update("minted_count", gorm.Expr("minted_count + ?", quantity))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreateUnits(ctx context.Context, units []models.MintedUnit) error {
	if len(units) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&units).Error
}

func (r *repository) FindUnit(ctx context.Context, unitRef uuid.UUID) (*models.MintedUnit, error) {
	var unit models.MintedUnit
	err := r.db.WithContext(ctx).
		Where("unit_ref = ?", unitRef).
		First(&unit).Error
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *repository) FindSignerKey(ctx context.Context) (*models.SignerKey, error) {
	var key models.SignerKey
	err := r.db.WithContext(ctx).
		Where("id = ?", signerKeyRowID).
		First(&key).Error
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *repository) SaveSignerKey(ctx context.Context, publicKeyHex string) error {
	key := &models.SignerKey{
		ID:           signerKeyRowID,
		PublicKeyHex: publicKeyHex,
		RotatedAt:    time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"public_key_hex", "rotated_at"}),
		}).
		Create(key).Error
}

func (r *repository) CountUnitsByOwner(ctx context.Context, ownerID uuid.UUID, fighterID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MintedUnit{}).
		Where("owner_user_id = ? AND fighter_id = ?", ownerID, fighterID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
