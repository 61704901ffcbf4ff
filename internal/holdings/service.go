package holdings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/internal/users"
	"github.com/bcolabs/fightcards-backend/pkg/db"
	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	"github.com/bcolabs/fightcards-backend/pkg/enums"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// holdingFoldAttempts bounds how often a fold re-reads after losing a race.
const holdingFoldAttempts = 3

// Service maintains post-mint bookkeeping: receipts, positions, fan standing.
type Service interface {
	ApplySettlement(ctx context.Context, input SettlementInput) (*SettlementResult, error)
	ListHoldings(ctx context.Context, userID uuid.UUID) ([]models.Holding, error)
	ListReceipts(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error)
	GetReceipt(ctx context.Context, orderID, userID uuid.UUID) (*models.Receipt, error)
}

// SettlementInput captures everything one minted order contributes to the
// buyer's books.
type SettlementInput struct {
	OrderID          uuid.UUID
	UserID           uuid.UUID
	FighterID        int64
	Quantity         int
	TotalCents       int64
	MintRef          string
	PaymentReference *string
	LineItems        []types.LineItem
}

// SettlementResult reports what a settlement produced: the receipt and the
// buyer's fan tier once the purchase was folded in.
type SettlementResult struct {
	Receipt *models.Receipt
	FanTier enums.FanTier
}

type service struct {
	tx        txRunner
	repo      Repository
	usersRepo users.Repository
}

// NewService wires the holdings service.
func NewService(tx txRunner, repo Repository, usersRepo users.Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("holdings repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{tx: tx, repo: repo, usersRepo: usersRepo}, nil
}

// ApplySettlement writes the receipt, folds the purchase into the buyer's
// position at a volume-weighted average cost, and refreshes the fan tier.
// Replays are absorbed by the one-receipt-per-order constraint.
func (s *service) ApplySettlement(ctx context.Context, input SettlementInput) (*SettlementResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if input.MintRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mint ref required")
	}

	lineItems, err := json.Marshal(input.LineItems)
	if err != nil {
		return nil, fmt.Errorf("marshal line items: %w", err)
	}

	receipt := &models.Receipt{
		ID:               uuid.New(),
		OrderID:          input.OrderID,
		UserID:           input.UserID,
		LineItems:        lineItems,
		TotalCents:       input.TotalCents,
		ExternalMintRef:  input.MintRef,
		PaymentReference: input.PaymentReference,
	}

	var replayed bool
	var tier enums.FanTier
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.InsertReceipt(ctx, receipt); err != nil {
			if db.IsUniqueViolation(err, "receipts") {
				replayed = true
				return nil
			}
			return err
		}

		if err := s.foldIntoHolding(ctx, repo, input); err != nil {
			return err
		}

		value, err := repo.SumHoldingsValue(ctx, input.UserID)
		if err != nil {
			return err
		}
		tier = enums.DeriveFanTier(value)
		return s.usersRepo.WithTx(tx).
			UpdateFanStanding(ctx, input.UserID, value, tier)
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		existing, err := s.repo.FindReceiptByOrder(ctx, input.OrderID)
		if err != nil {
			return nil, err
		}
		value, err := s.repo.SumHoldingsValue(ctx, input.UserID)
		if err != nil {
			return nil, err
		}
		return &SettlementResult{Receipt: existing, FanTier: enums.DeriveFanTier(value)}, nil
	}
	return &SettlementResult{Receipt: receipt, FanTier: tier}, nil
}

// foldIntoHolding merges a purchase into the buyer's position. Under read
// committed two settlements for the same position can interleave between the
// read and the write, so the update is guarded on the quantity that was read;
// a rejected guard means the row moved underneath us and the fold re-reads.
func (s *service) foldIntoHolding(ctx context.Context, repo Repository, input SettlementInput) error {
	quantity := int64(input.Quantity)

	for attempt := 0; attempt < holdingFoldAttempts; attempt++ {
		existing, err := repo.FindHolding(ctx, input.UserID, input.FighterID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if existing == nil {
			average := decimal.NewFromInt(input.TotalCents).
				Div(decimal.NewFromInt(quantity)).
				Round(0).
				IntPart()
			err := repo.InsertHolding(ctx, &models.Holding{
				ID:               uuid.New(),
				UserID:           input.UserID,
				FighterID:        input.FighterID,
				Quantity:         quantity,
				AverageCostCents: average,
			})
			if err != nil && db.IsUniqueViolation(err, "holdings") {
				// Lost the race to create the row; fold into it instead.
				continue
			}
			return err
		}

		newQuantity := existing.Quantity + quantity
		average := decimal.NewFromInt(existing.AverageCostCents).
			Mul(decimal.NewFromInt(existing.Quantity)).
			Add(decimal.NewFromInt(input.TotalCents)).
			Div(decimal.NewFromInt(newQuantity)).
			Round(0).
			IntPart()
		updated, err := repo.UpdateHolding(ctx, existing.ID, existing.Quantity, newQuantity, average)
		if err != nil {
			return err
		}
		if updated {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "holding changed concurrently").
		WithDetails(map[string]any{"user_id": input.UserID, "fighter_id": input.FighterID})
}

func (s *service) ListHoldings(ctx context.Context, userID uuid.UUID) ([]models.Holding, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.repo.ListHoldingsByUser(ctx, userID)
}

func (s *service) ListReceipts(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.repo.ListReceiptsByUser(ctx, userID)
}

// GetReceipt fetches one receipt, scoped to its owner.
func (s *service) GetReceipt(ctx context.Context, orderID, userID uuid.UUID) (*models.Receipt, error) {
	if orderID == uuid.Nil || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id required")
	}
	receipt, err := s.repo.FindReceiptByOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
	}
	if err != nil {
		return nil, err
	}
	if receipt.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
	}
	return receipt, nil
}
