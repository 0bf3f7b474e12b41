package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, DriverLocal, cfg.DBDriver)
	assert.Equal(t, 168*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.StateTTL)
	assert.Equal(t, "accesstoken", cfg.CookieName)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "http://localhost:3000/auth/callback", cfg.CallbackURL())
	assert.False(t, cfg.MirrorEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"DB_DRIVER":            " SQLite ",
		"SQLITE_PATH":          "/tmp/q.db",
		"SERVICE_URL":          "https://api.example.com/",
		"ALLOWED_ORIGINS":      "https://a.example.com, https://b.example.com",
		"TOKEN_TTL":            "24h",
		"SUPABASE_URL":         "https://x.supabase.co/",
		"SUPABASE_SERVICE_KEY": "key",
		"DEBUG":                "true",
	})
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "https://api.example.com/auth/callback", cfg.CallbackURL())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "https://x.supabase.co", cfg.SupabaseURL)
	assert.True(t, cfg.MirrorEnabled())
	assert.True(t, cfg.Debug)
	assert.NoError(t, cfg.Validate())
}

func TestProductionHardening(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"ENVIRONMENT":  "production",
		"DEBUG":        "true",
		"DB_DRIVER":    "postgres",
		"POSTGRES_DSN": "postgres://u:p@localhost/q?sslmode=disable",
	})
	require.NoError(t, err)
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.CookieSecure)

	// 默认密钥在生产环境不可用
	assert.Error(t, cfg.Validate())
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())

	cfg.DBDriver = DriverLocal
	assert.Error(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"empty secret", func(c *Config) { c.JWTSecret = "" }},
		{"zero ttl", func(c *Config) { c.TokenTTL = 0 }},
		{"zero state ttl", func(c *Config) { c.StateTTL = 0 }},
		{"postgres without dsn", func(c *Config) { c.DBDriver = DriverPostgres }},
		{"sqlite without path", func(c *Config) { c.DBDriver = DriverSQLite; c.SQLitePath = "" }},
		{"unknown driver", func(c *Config) { c.DBDriver = "mongo" }},
		{"half supabase", func(c *Config) { c.SupabaseURL = "https://x.supabase.co" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(map[string]string{})
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse(map[string]string{"TOKEN_TTL": "forever"})
	assert.Error(t, err)
}
