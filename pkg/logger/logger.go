package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"quickcap-auth-backend/pkg/config"
)

// New 根据环境创建 zap logger：生产环境 JSON，开发环境彩色控制台
func New(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.LogLevel, cfg.Debug))
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zc.Build(zap.Fields(zap.String("env", cfg.Environment)))
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ParseLevel LOG_LEVEL 转 zap 级别，Debug 时强制 debug
func ParseLevel(level string, debug bool) zapcore.Level {
	if debug {
		return zapcore.DebugLevel
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// Or l 为 nil 时返回空 logger
func Or(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
