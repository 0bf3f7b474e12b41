package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"quickcap-auth-backend/pkg/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN ", false))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose", false))
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("error", true))
}

func TestNew(t *testing.T) {
	l, err := New(&config.Config{Environment: "production", LogLevel: "error"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))

	dev, err := New(&config.Config{Environment: "development", Debug: true})
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}

func TestOr(t *testing.T) {
	assert.NotNil(t, Or(nil))
}
