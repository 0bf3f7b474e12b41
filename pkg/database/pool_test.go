package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"quickcap-auth-backend/pkg/config"
)

func TestNewMirror(t *testing.T) {
	cfg := &config.Config{}
	assert.IsType(t, NopMirror{}, NewMirror(cfg, nil))

	cfg.SupabaseURL, cfg.SupabaseKey = "https://x.supabase.co", "key"
	assert.IsType(t, &SupabaseMirror{}, NewMirror(cfg, nil))
}

func TestGetDatabaseCachesInstance(t *testing.T) {
	t.Cleanup(func() { _ = CloseDatabase() })
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	cfg := &config.Config{DBDriver: config.DriverLocal}

	first, err := GetDatabase(ctx, cfg, log)
	require.NoError(t, err)
	second, err := GetDatabase(ctx, cfg, log)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// 配置变化时重建
	other := &config.Config{DBDriver: config.DriverLocal, LocalDataDir: t.TempDir()}
	third, err := GetDatabase(ctx, other, log)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestNewDatabaseRejectsUnknownDriver(t *testing.T) {
	_, err := NewDatabase(context.Background(), &config.Config{DBDriver: "mongo"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestMigrationURL(t *testing.T) {
	url, err := MigrationURL(&config.Config{DBDriver: config.DriverSQLite, SQLitePath: "data/q.db"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite://data/q.db", url)

	_, err = MigrationURL(&config.Config{DBDriver: config.DriverPostgres, PostgresDSN: "host=localhost dbname=q"})
	assert.Error(t, err)

	_, err = MigrationURL(&config.Config{DBDriver: config.DriverLocal})
	assert.Error(t, err)
}
