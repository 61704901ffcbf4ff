package supply

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/pkg/db"
	"github.com/bcolabs/fightcards-backend/pkg/db/models"
)

func setupSupplyTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS supply_records (
  fighter_id INTEGER PRIMARY KEY,
  recorded_attendance INTEGER NOT NULL DEFAULT 0,
  max_supply INTEGER NOT NULL DEFAULT 0,
  minted_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS spent_nonces (
  nonce TEXT PRIMARY KEY,
  fighter_id INTEGER NOT NULL,
  spent_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS minted_units (
  unit_ref TEXT PRIMARY KEY,
  mint_ref TEXT NOT NULL,
  fighter_id INTEGER NOT NULL,
  owner_user_id TEXT NOT NULL,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func TestIncrementMintedRespectsCap(t *testing.T) {
	conn := setupSupplyTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, &models.SupplyRecord{
		FighterID:          1,
		RecordedAttendance: 10,
		MaxSupply:          5,
	}))

	ok, err := repo.IncrementMinted(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IncrementMinted(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	// Cap is exhausted now.
	ok, err = repo.IncrementMinted(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	record, err := repo.FindRecord(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), record.MintedCount)
}

func TestIncrementMintedUnlimitedWhenCapUnset(t *testing.T) {
	conn := setupSupplyTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, &models.SupplyRecord{FighterID: 2}))

	ok, err := repo.IncrementMinted(ctx, 2, 1000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInsertSpentNonceRejectsDuplicate(t *testing.T) {
	conn := setupSupplyTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.InsertSpentNonce(ctx, &models.SpentNonce{Nonce: "abc", FighterID: 1}))

	err := repo.InsertSpentNonce(ctx, &models.SpentNonce{Nonce: "abc", FighterID: 1})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, "spent_nonces"))
}

func TestUpdateSupplyGuardsAgainstRegression(t *testing.T) {
	conn := setupSupplyTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, &models.SupplyRecord{
		FighterID:          3,
		RecordedAttendance: 100,
		MaxSupply:          50,
	}))

	ok, err := repo.UpdateSupply(ctx, 3, 200, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale writer carrying lower values is rejected.
	ok, err = repo.UpdateSupply(ctx, 3, 150, 75)
	require.NoError(t, err)
	assert.False(t, ok)

	record, err := repo.FindRecord(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(200), record.RecordedAttendance)
	assert.Equal(t, int64(100), record.MaxSupply)
}

func TestRaiseCapOnlyIncreases(t *testing.T) {
	conn := setupSupplyTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, &models.SupplyRecord{FighterID: 4, MaxSupply: 10}))

	ok, err := repo.RaiseCap(ctx, 4, 20)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RaiseCap(ctx, 4, 20)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.RaiseCap(ctx, 4, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnitsRoundTrip(t *testing.T) {
	conn := setupSupplyTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	owner := uuid.New()
	refA := uuid.New()
	refB := uuid.New()
	units := []models.MintedUnit{
		{UnitRef: refA, MintRef: "mint_x", FighterID: 5, OwnerUserID: owner},
		{UnitRef: refB, MintRef: "mint_x", FighterID: 5, OwnerUserID: owner},
	}
	require.NoError(t, repo.CreateUnits(ctx, units))

	unit, err := repo.FindUnit(ctx, refA)
	require.NoError(t, err)
	assert.Equal(t, owner, unit.OwnerUserID)
	assert.Equal(t, "mint_x", unit.MintRef)

	count, err := repo.CountUnitsByOwner(ctx, owner, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountUnitsByOwner(ctx, owner, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = repo.FindUnit(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
