package repositories

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bbernstein/dmxbridge-go/internal/database/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Setting{}))
	return db
}

func TestUpsertCreatesAndUpdates(t *testing.T) {
	repo := NewSettingRepository(newTestDB(t))
	ctx := context.Background()

	created, err := repo.Upsert(ctx, models.SettingUniverse, "2")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "2", created.Value)

	updated, err := repo.Upsert(ctx, models.SettingUniverse, "5")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "upsert must update in place, not duplicate")
	assert.Equal(t, "5", updated.Value)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFindByKeyMissing(t *testing.T) {
	repo := NewSettingRepository(newTestDB(t))

	setting, err := repo.FindByKey(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, setting)
}

func TestFindInt(t *testing.T) {
	repo := NewSettingRepository(newTestDB(t))
	ctx := context.Background()

	// Missing: fallback.
	v, err := repo.FindInt(ctx, models.SettingChannels, 512)
	require.NoError(t, err)
	assert.Equal(t, 512, v)

	_, err = repo.UpsertInt(ctx, models.SettingChannels, 24)
	require.NoError(t, err)

	v, err = repo.FindInt(ctx, models.SettingChannels, 512)
	require.NoError(t, err)
	assert.Equal(t, 24, v)

	// Unparseable value: fallback, not an error.
	_, err = repo.Upsert(ctx, models.SettingDelayMS, "soon")
	require.NoError(t, err)
	v, err = repo.FindInt(ctx, models.SettingDelayMS, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, v)
}

func TestDelete(t *testing.T) {
	repo := NewSettingRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Upsert(ctx, models.SettingDelayMS, "40")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, models.SettingDelayMS))

	setting, err := repo.FindByKey(ctx, models.SettingDelayMS)
	require.NoError(t, err)
	assert.Nil(t, setting)
}
