package holdings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/pkg/db/models"
)

// Repository defines persistence operations for holdings and receipts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindHolding(ctx context.Context, userID uuid.UUID, fighterID int64) (*models.Holding, error)
	InsertHolding(ctx context.Context, holding *models.Holding) error
	// UpdateHolding rewrites a position, guarded on the quantity the caller
	// read. Returns false when the row changed since that read.
	UpdateHolding(ctx context.Context, id uuid.UUID, fromQuantity, quantity, averageCostCents int64) (bool, error)
	ListHoldingsByUser(ctx context.Context, userID uuid.UUID) ([]models.Holding, error)
	// SumHoldingsValue returns the aggregate position value (quantity times
	// average cost) across all of a user's holdings.
	SumHoldingsValue(ctx context.Context, userID uuid.UUID) (int64, error)
	InsertReceipt(ctx context.Context, receipt *models.Receipt) error
	FindReceiptByOrder(ctx context.Context, orderID uuid.UUID) (*models.Receipt, error)
	ListReceiptsByUser(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error)
}
