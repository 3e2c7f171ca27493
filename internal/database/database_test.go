package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/soundbay/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "soundbay.db"))
	require.NoError(t, err)

	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
	assert.NoError(t, Health(context.Background(), db))

	// Migrate is idempotent
	require.NoError(t, Migrate(db))
}

func TestMigrateNilDB(t *testing.T) {
	assert.Error(t, Migrate(nil))
	assert.Error(t, Health(context.Background(), nil))
}

func TestCloseWithoutInitialize(t *testing.T) {
	DB = nil
	assert.NoError(t, Close())
}
