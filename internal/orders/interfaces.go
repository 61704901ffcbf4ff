package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	"github.com/bcolabs/fightcards-backend/pkg/enums"
)

// Repository defines persistence operations for orders. Every status
// transition is a conditional write keyed on the current status, so replays
// and races collapse into no-ops instead of double transitions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListByStatus(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string) (bool, error)
	MarkMinted(ctx context.Context, id uuid.UUID, mintRef string) (bool, error)
	MarkSettled(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
	FindCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindPaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindMintedUnsettled(ctx context.Context, limit int) ([]models.Order, error)
}
