package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newSQLiteStore(t *testing.T) *SQLDatabase {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quickcap.db")
	require.NoError(t, RunMigrations("sqlite://"+path))

	db, err := OpenSQLite(context.Background(), path, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteDatabase(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return newSQLiteStore(t)
	})
}

func TestMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quickcap.db")
	url := "sqlite://" + path

	require.NoError(t, RunMigrations(url))
	// 重复执行无变化
	require.NoError(t, RunMigrations(url))

	version, dirty, err := MigrationVersion(url)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, RollbackMigrations(url, 1))
	version, _, err = MigrationVersion(url)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}
