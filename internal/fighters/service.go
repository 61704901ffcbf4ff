package fighters

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
)

// Service exposes the fighter catalog.
type Service interface {
	Create(ctx context.Context, input CreateFighterInput) (*models.Fighter, error)
	Get(ctx context.Context, id int64) (*models.Fighter, error)
	List(ctx context.Context, activeOnly bool) ([]models.Fighter, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// CreateFighterInput captures the catalog data a new fighter requires.
type CreateFighterInput struct {
	ID             int64
	Name           string
	Division       string
	Record         string
	BasePriceCents int64
}

type service struct {
	repo Repository
}

// NewService wires a fighter catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("fighter repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateFighterInput) (*models.Fighter, error) {
	if input.ID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fighter id must be positive")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fighter name required")
	}
	if input.BasePriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base price must be positive")
	}

	fighter := &models.Fighter{
		ID:             input.ID,
		Name:           input.Name,
		Division:       input.Division,
		Record:         input.Record,
		BasePriceCents: input.BasePriceCents,
		Active:         true,
	}
	if err := s.repo.Create(ctx, fighter); err != nil {
		return nil, err
	}
	return fighter, nil
}

func (s *service) Get(ctx context.Context, id int64) (*models.Fighter, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fighter id must be positive")
	}
	fighter, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "fighter not found")
	}
	if err != nil {
		return nil, err
	}
	return fighter, nil
}

func (s *service) List(ctx context.Context, activeOnly bool) ([]models.Fighter, error) {
	return s.repo.List(ctx, activeOnly)
}

func (s *service) SetActive(ctx context.Context, id int64, active bool) error {
	if id <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "fighter id must be positive")
	}
	return s.repo.Update(ctx, id, map[string]any{"active": active})
}
