package holdings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a holdings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindHolding(ctx context.Context, userID uuid.UUID, fighterID int64) (*models.Holding, error) {
	var holding models.Holding
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND fighter_id = ?", userID, fighterID).
		First(&holding).Error
	if err != nil {
		return nil, err
	}
	return &holding, nil
}

func (r *repository) InsertHolding(ctx context.Context, holding *models.Holding) error {
	return r.db.WithContext(ctx).Create(holding).Error
}

func (r *repository) UpdateHolding(ctx context.Context, id uuid.UUID, fromQuantity, quantity, averageCostCents int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Holding{}).
		Where("id = ? AND quantity = ?", id, fromQuantity).
		Updates(map[string]any{
			"quantity":           quantity,
			"average_cost_cents": averageCostCents,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListHoldingsByUser(ctx context.Context, userID uuid.UUID) ([]models.Holding, error) {
	var holdings []models.Holding
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("fighter_id ASC").
		Find(&holdings).Error
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

func (r *repository) SumHoldingsValue(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total *int64
	err := r.db.WithContext(ctx).
		Model(&models.Holding{}).
		Select("SUM(quantity * average_cost_cents)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *repository) InsertReceipt(ctx context.Context, receipt *models.Receipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *repository) FindReceiptByOrder(ctx context.Context, orderID uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&receipt).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) ListReceiptsByUser(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}
