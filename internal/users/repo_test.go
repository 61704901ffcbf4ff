package users

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bcolabs/fightcards-backend/pkg/db/models"
	"github.com/bcolabs/fightcards-backend/pkg/enums"
)

func setupUsersRepo(t *testing.T) Repository {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  display_name TEXT NOT NULL,
  is_admin INTEGER NOT NULL DEFAULT 0,
  fan_value_cents INTEGER NOT NULL DEFAULT 0,
  fan_tier INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	return NewRepository(conn)
}

func seedUser(t *testing.T, repo Repository) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New(),
		Email:        "fan@example.com",
		PasswordHash: "hash",
		DisplayName:  "Fan One",
		FanTier:      enums.FanTierContender,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestFindByEmail(t *testing.T) {
	repo := setupUsersRepo(t)
	ctx := context.Background()

	seeded := seedUser(t, repo)

	found, err := repo.FindByEmail(ctx, "fan@example.com")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestUpdateFanStanding(t *testing.T) {
	repo := setupUsersRepo(t)
	ctx := context.Background()

	seeded := seedUser(t, repo)
	require.NoError(t, repo.UpdateFanStanding(ctx, seeded.ID, 260_000, enums.FanTierSilver))

	found, err := repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(260_000), found.FanValueCents)
	assert.Equal(t, enums.FanTierSilver, found.FanTier)
}
