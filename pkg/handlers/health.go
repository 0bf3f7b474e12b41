package handlers

import (
	"context"
	"net/http"
	"time"

	"quickcap-auth-backend/pkg/config"
	"quickcap-auth-backend/pkg/utils"
)

// Pinger 健康检查依赖
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	config *config.Config
	db     Pinger
}

func NewHealthHandler(cfg *config.Config, db Pinger) *HealthHandler {
	return &HealthHandler{config: cfg, db: db}
}

// HealthCheck GET /
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 测试数据库连接
	status := "healthy"
	dbStatus := "healthy"
	if err := h.db.HealthCheck(ctx); err != nil {
		dbStatus = "unhealthy: " + err.Error()
		status = "degraded"
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     "quickcap-auth-backend",
		"version":     "1.0.0",
		"environment": h.config.Environment,
		"database":    h.config.DBDriver,
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
		"status":      status,
	})
}
