package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())

	version, err := db.Version()
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	var count int
	err = db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('items', 'item_provider_ids', 'item_images')`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, db.MigrateDown())
	err = db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'items'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
