package fighters

import (
	"context"

	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/pkg/db/models"
)

// Repository defines persistence operations for the fighter catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, fighter *models.Fighter) error
	FindByID(ctx context.Context, id int64) (*models.Fighter, error)
	List(ctx context.Context, activeOnly bool) ([]models.Fighter, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a fighter repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, fighter *models.Fighter) error {
	return r.db.WithContext(ctx).Create(fighter).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Fighter, error) {
	var fighter models.Fighter
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&fighter).Error
	if err != nil {
		return nil, err
	}
	return &fighter, nil
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]models.Fighter, error) {
	query := r.db.WithContext(ctx).Model(&models.Fighter{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var fighters []models.Fighter
	if err := query.Order("id ASC").Find(&fighters).Error; err != nil {
		return nil, err
	}
	return fighters, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Fighter{}).
		Where("id = ?", id).
		Updates(updates).Error
}
