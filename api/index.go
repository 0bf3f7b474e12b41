package handler

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/config"
	"quickcap-auth-backend/pkg/database"
	"quickcap-auth-backend/pkg/logger"
	"quickcap-auth-backend/pkg/server"
	"quickcap-auth-backend/pkg/utils"
)

// coldStart 在函数实例生命周期内复用
var coldStart struct {
	mu       sync.Mutex
	logger   *zap.Logger
	store    database.Store
	app      *server.App
	migrated bool
}

// Handler 是Vercel函数的入口点
// 所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg, err := config.GetCached()
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error")
		return
	}
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	app, err := getApp(r, cfg)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Database unavailable")
		return
	}
	app.ServeHTTP(w, r)
}

// getApp 连接变化时重建路由器
func getApp(r *http.Request, cfg *config.Config) (*server.App, error) {
	coldStart.mu.Lock()
	defer coldStart.mu.Unlock()

	if coldStart.logger == nil {
		log, err := logger.New(cfg)
		if err != nil {
			return nil, err
		}
		coldStart.logger = log
	}
	log := coldStart.logger

	// 连接由连接池管理，无需手动关闭
	store, err := database.GetDatabase(r.Context(), cfg, log)
	if err != nil {
		log.Error("failed to get database", zap.Error(err))
		return nil, err
	}

	if cfg.AutoMigrate && cfg.DBDriver != config.DriverLocal && !coldStart.migrated {
		url, err := database.MigrationURL(cfg)
		if err == nil {
			err = database.RunMigrations(url)
		}
		if err != nil {
			log.Error("failed to run migrations", zap.Error(err))
			return nil, err
		}
		coldStart.migrated = true
	}

	if coldStart.app == nil || coldStart.store != store {
		if coldStart.app != nil {
			coldStart.app.Close()
		}
		coldStart.app = server.New(server.Deps{Config: cfg, Store: store, Logger: log})
		coldStart.store = store
	}
	return coldStart.app, nil
}
