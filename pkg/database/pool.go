package database

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/config"
)

// NewDatabase 根据配置选择存储实现
func NewDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		logger.Info("using postgres database")
		return OpenPostgres(ctx, cfg.PostgresDSN, logger)
	case config.DriverSQLite:
		logger.Info("using sqlite database", zap.String("path", cfg.SQLitePath))
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	case config.DriverLocal:
		logger.Info("using local database", zap.String("dir", cfg.LocalDataDir))
		return NewLocalDatabase(cfg.LocalDataDir, logger)
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

// NewMirror 根据配置创建 Supabase 镜像
func NewMirror(cfg *config.Config, logger *zap.Logger) Mirror {
	if !cfg.MirrorEnabled() {
		return NopMirror{}
	}
	return NewSupabaseMirror(cfg.SupabaseURL, cfg.SupabaseKey, logger)
}

// pool 每个进程缓存一个 Store（无服务器冷启动复用）
type pool struct {
	mu       sync.Mutex
	instance Store
	key      string
	lastUsed time.Time
}

var globalPool pool

// GetDatabase 获取数据库连接（单例模式）
func GetDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	globalPool.mu.Lock()
	defer globalPool.mu.Unlock()

	key := configKey(cfg)
	if globalPool.instance != nil && !shouldRecreateConnection(ctx, key, logger) {
		globalPool.lastUsed = time.Now()
		return globalPool.instance, nil
	}

	// 关闭旧连接（如果存在）
	if globalPool.instance != nil {
		_ = globalPool.instance.Close()
		globalPool.instance = nil
	}

	logger.Info("creating new database connection")
	instance, err := NewDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	globalPool.instance = instance
	globalPool.key = key
	globalPool.lastUsed = time.Now()
	return instance, nil
}

// shouldRecreateConnection 配置变化、空闲过久或健康检查失败时重建
func shouldRecreateConnection(ctx context.Context, key string, logger *zap.Logger) bool {
	if globalPool.key != key {
		logger.Info("database configuration changed, recreating connection")
		return true
	}
	// 内存库重建会丢数据
	if !strings.HasPrefix(key, config.DriverLocal+"|") && time.Since(globalPool.lastUsed) > 30*time.Minute {
		logger.Info("database connection idle, recreating")
		return true
	}
	if err := globalPool.instance.HealthCheck(ctx); err != nil {
		logger.Warn("database health check failed, recreating", zap.Error(err))
		return true
	}
	return false
}

func configKey(cfg *config.Config) string {
	return cfg.DBDriver + "|" + cfg.PostgresDSN + "|" + cfg.SQLitePath + "|" + cfg.LocalDataDir
}

// CloseDatabase 关闭缓存的连接
func CloseDatabase() error {
	globalPool.mu.Lock()
	defer globalPool.mu.Unlock()
	if globalPool.instance == nil {
		return nil
	}
	err := globalPool.instance.Close()
	globalPool.instance = nil
	globalPool.key = ""
	return err
}
