package holdings

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/internal/users"
	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	"github.com/bcolabs/fightcards-backend/pkg/enums"
	pkgerrors "github.com/bcolabs/fightcards-backend/pkg/errors"
	"github.com/bcolabs/fightcards-backend/pkg/types"
)

type sqliteTxRunner struct {
	conn *gorm.DB
}

func (r sqliteTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn.WithContext(ctx).Transaction(fn)
}

func setupHoldingsTest(t *testing.T) (Service, users.Repository, *gorm.DB) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  display_name TEXT NOT NULL,
  is_admin INTEGER NOT NULL DEFAULT 0,
  fan_value_cents INTEGER NOT NULL DEFAULT 0,
  fan_tier INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE holdings (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  fighter_id INTEGER NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 0,
  average_cost_cents INTEGER NOT NULL DEFAULT 0,
  last_updated_at DATETIME,
  created_at DATETIME,
  UNIQUE (user_id, fighter_id)
);`,
		`CREATE TABLE receipts (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  line_items TEXT NOT NULL,
  total_cents INTEGER NOT NULL,
  external_mint_ref TEXT NOT NULL,
  payment_reference TEXT,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	usersRepo := users.NewRepository(conn)
	svc, err := NewService(sqliteTxRunner{conn: conn}, NewRepository(conn), usersRepo)
	require.NoError(t, err)
	return svc, usersRepo, conn
}

func seedUser(t *testing.T, repo users.Repository) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, repo.Create(context.Background(), &models.User{
		ID:           id,
		Email:        id.String() + "@example.com",
		PasswordHash: "x",
		DisplayName:  "Test Fan",
		FanTier:      enums.FanTierContender,
	}))
	return id
}

func TestApplySettlementCreatesReceiptAndHolding(t *testing.T) {
	svc, usersRepo, _ := setupHoldingsTest(t)
	ctx := context.Background()
	userID := seedUser(t, usersRepo)

	result, err := svc.ApplySettlement(ctx, SettlementInput{
		OrderID:    uuid.New(),
		UserID:     userID,
		FighterID:  7,
		Quantity:   2,
		TotalCents: 1125,
		MintRef:    "mint_a",
		LineItems:  []types.LineItem{{Label: "Fighter card x2", AmountCents: 1000}},
	})
	require.NoError(t, err)
	assert.Equal(t, "mint_a", result.Receipt.ExternalMintRef)
	assert.Equal(t, enums.FanTierContender, result.FanTier)

	holdings, err := svc.ListHoldings(ctx, userID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(2), holdings[0].Quantity)
	// 1125 over 2 units rounds to 563.
	assert.Equal(t, int64(563), holdings[0].AverageCostCents)

	user, err := usersRepo.FindByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1126), user.FanValueCents)
	assert.Equal(t, enums.FanTierContender, user.FanTier)
}

func TestApplySettlementWeightedAverage(t *testing.T) {
	svc, usersRepo, _ := setupHoldingsTest(t)
	ctx := context.Background()
	userID := seedUser(t, usersRepo)

	_, err := svc.ApplySettlement(ctx, SettlementInput{
		OrderID:    uuid.New(),
		UserID:     userID,
		FighterID:  7,
		Quantity:   2,
		TotalCents: 1000,
		MintRef:    "mint_a",
	})
	require.NoError(t, err)

	_, err = svc.ApplySettlement(ctx, SettlementInput{
		OrderID:    uuid.New(),
		UserID:     userID,
		FighterID:  7,
		Quantity:   2,
		TotalCents: 2000,
		MintRef:    "mint_b",
	})
	require.NoError(t, err)

	holdings, err := svc.ListHoldings(ctx, userID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(4), holdings[0].Quantity)
	// (500*2 + 2000) / 4 = 750.
	assert.Equal(t, int64(750), holdings[0].AverageCostCents)
}

func TestApplySettlementIsIdempotentPerOrder(t *testing.T) {
	svc, usersRepo, _ := setupHoldingsTest(t)
	ctx := context.Background()
	userID := seedUser(t, usersRepo)
	orderID := uuid.New()

	input := SettlementInput{
		OrderID:    orderID,
		UserID:     userID,
		FighterID:  7,
		Quantity:   1,
		TotalCents: 575,
		MintRef:    "mint_a",
	}
	first, err := svc.ApplySettlement(ctx, input)
	require.NoError(t, err)

	second, err := svc.ApplySettlement(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.Receipt.ID, second.Receipt.ID)
	assert.Equal(t, first.FanTier, second.FanTier)

	holdings, err := svc.ListHoldings(ctx, userID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(1), holdings[0].Quantity)
}

func TestApplySettlementPromotesFanTier(t *testing.T) {
	svc, usersRepo, _ := setupHoldingsTest(t)
	ctx := context.Background()
	userID := seedUser(t, usersRepo)

	result, err := svc.ApplySettlement(ctx, SettlementInput{
		OrderID:    uuid.New(),
		UserID:     userID,
		FighterID:  7,
		Quantity:   100,
		TotalCents: 60_000,
		MintRef:    "mint_a",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.FanTierBronze, result.FanTier)

	user, err := usersRepo.FindByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.FanTierBronze, user.FanTier)
	assert.Equal(t, int64(60_000), user.FanValueCents)
}

// interleavingRepo lands a rival position update between the fold's read and
// its guarded write, exactly once.
type interleavingRepo struct {
	Repository
	once  *sync.Once
	raced *bool
}

func (r *interleavingRepo) WithTx(tx *gorm.DB) Repository {
	return &interleavingRepo{Repository: r.Repository.WithTx(tx), once: r.once, raced: r.raced}
}

func (r *interleavingRepo) FindHolding(ctx context.Context, userID uuid.UUID, fighterID int64) (*models.Holding, error) {
	holding, err := r.Repository.FindHolding(ctx, userID, fighterID)
	if err != nil {
		return nil, err
	}
	r.once.Do(func() {
		ok, rivalErr := r.Repository.UpdateHolding(ctx, holding.ID, holding.Quantity, holding.Quantity+1, holding.AverageCostCents)
		*r.raced = ok && rivalErr == nil
	})
	return holding, nil
}

func TestUpdateHoldingGuardsOnReadQuantity(t *testing.T) {
	_, _, conn := setupHoldingsTest(t)
	ctx := context.Background()
	repo := NewRepository(conn)

	holding := &models.Holding{ID: uuid.New(), UserID: uuid.New(), FighterID: 7, Quantity: 2, AverageCostCents: 500}
	require.NoError(t, repo.InsertHolding(ctx, holding))

	ok, err := repo.UpdateHolding(ctx, holding.ID, 2, 4, 600)
	require.NoError(t, err)
	assert.True(t, ok)

	// A writer that still thinks the quantity is 2 is rejected.
	ok, err = repo.UpdateHolding(ctx, holding.ID, 2, 6, 700)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplySettlementRefoldsAfterRivalWrite(t *testing.T) {
	_, usersRepo, conn := setupHoldingsTest(t)
	ctx := context.Background()
	userID := seedUser(t, usersRepo)

	raced := false
	repo := &interleavingRepo{Repository: NewRepository(conn), once: &sync.Once{}, raced: &raced}
	svc, err := NewService(sqliteTxRunner{conn: conn}, repo, usersRepo)
	require.NoError(t, err)

	// Seed a position of 2 units at a 500 average.
	_, err = svc.ApplySettlement(ctx, SettlementInput{
		OrderID:    uuid.New(),
		UserID:     userID,
		FighterID:  7,
		Quantity:   2,
		TotalCents: 1000,
		MintRef:    "mint_a",
	})
	require.NoError(t, err)

	// The rival adds one unit right after this settlement reads the row, so
	// the first guarded write misses and the fold re-reads.
	_, err = svc.ApplySettlement(ctx, SettlementInput{
		OrderID:    uuid.New(),
		UserID:     userID,
		FighterID:  7,
		Quantity:   2,
		TotalCents: 2000,
		MintRef:    "mint_b",
	})
	require.NoError(t, err)
	require.True(t, raced)

	holdings, err := svc.ListHoldings(ctx, userID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	// The rival's unit and both settlements all survive: 3 + 2 units,
	// (3*500 + 2000) / 5 = 700 average.
	assert.Equal(t, int64(5), holdings[0].Quantity)
	assert.Equal(t, int64(700), holdings[0].AverageCostCents)
}

func TestGetReceiptScopedToOwner(t *testing.T) {
	svc, usersRepo, _ := setupHoldingsTest(t)
	ctx := context.Background()
	userID := seedUser(t, usersRepo)
	orderID := uuid.New()

	_, err := svc.ApplySettlement(ctx, SettlementInput{
		OrderID:    orderID,
		UserID:     userID,
		FighterID:  7,
		Quantity:   1,
		TotalCents: 575,
		MintRef:    "mint_a",
	})
	require.NoError(t, err)

	receipt, err := svc.GetReceipt(ctx, orderID, userID)
	require.NoError(t, err)
	assert.Equal(t, orderID, receipt.OrderID)

	_, err = svc.GetReceipt(ctx, orderID, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.GetReceipt(ctx, uuid.New(), userID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestApplySettlementValidation(t *testing.T) {
	svc, _, _ := setupHoldingsTest(t)
	ctx := context.Background()

	_, err := svc.ApplySettlement(ctx, SettlementInput{
		UserID: uuid.New(), FighterID: 1, Quantity: 1, MintRef: "m",
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.ApplySettlement(ctx, SettlementInput{
		OrderID: uuid.New(), FighterID: 1, Quantity: 1, MintRef: "m",
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.ApplySettlement(ctx, SettlementInput{
		OrderID: uuid.New(), UserID: uuid.New(), FighterID: 1, Quantity: 0, MintRef: "m",
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.ApplySettlement(ctx, SettlementInput{
		OrderID: uuid.New(), UserID: uuid.New(), FighterID: 1, Quantity: 1,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
