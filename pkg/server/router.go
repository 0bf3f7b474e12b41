package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/auth"
	"quickcap-auth-backend/pkg/config"
	"quickcap-auth-backend/pkg/database"
	"quickcap-auth-backend/pkg/handlers"
	"quickcap-auth-backend/pkg/logger"
	"quickcap-auth-backend/pkg/metrics"
	customMiddleware "quickcap-auth-backend/pkg/middleware"
	"quickcap-auth-backend/pkg/service"
	"quickcap-auth-backend/pkg/utils"
)

// Deps 构建路由所需的依赖；Mirror/Providers 为空时按配置创建
type Deps struct {
	Config    *config.Config
	Store     database.Store
	Mirror    database.Mirror
	Providers auth.Providers
	Logger    *zap.Logger
}

// App 组装完成的 HTTP 应用
type App struct {
	Router  *chi.Mux
	Tokens  *auth.TokenService
	Users   *service.UserDirectory
	Orgs    *service.OrgService
	limiter *customMiddleware.RateLimiter
}

// DefaultProviders 根据配置注册身份提供方
func DefaultProviders(cfg *config.Config) auth.Providers {
	return auth.Providers{
		auth.ProviderGoogle: auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.CallbackURL(),
			HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		}),
	}
}

// New 创建路由器并注册全部路由
func New(d Deps) *App {
	cfg := d.Config
	log := logger.Or(d.Logger)
	if d.Mirror == nil {
		d.Mirror = database.NewMirror(cfg, log)
	}
	if d.Providers == nil {
		d.Providers = DefaultProviders(cfg)
	}

	var rec metrics.Recorder = metrics.Nop{}
	var registry *prometheus.Registry
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec = metrics.NewCollector(registry)
	}

	limiter := customMiddleware.NewRateLimiter(customMiddleware.RateLimiterConfig{
		RequestsPerMinute: cfg.RateLimitRPM,
		Burst:             cfg.RateLimitBurst,
	}, log)
	app := &App{
		Router:  chi.NewRouter(),
		Tokens:  auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL, cfg.StateTTL),
		Users:   service.NewUserDirectory(d.Store, d.Mirror, log),
		Orgs:    service.NewOrgService(d.Store, d.Mirror, log),
		limiter: limiter,
	}

	setupMiddleware(app.Router, cfg, log, rec, app.limiter)
	setupRoutes(app, cfg, d, rec, registry, log)
	return app
}

// ServeHTTP 实现 http.Handler
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Router.ServeHTTP(w, r)
}

// Close 停止后台任务
func (a *App) Close() {
	a.limiter.Stop()
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config, log *zap.Logger, rec metrics.Recorder, limiter *customMiddleware.RateLimiter) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.RequestLogger(log))
	router.Use(customMiddleware.Recovery(log, cfg.IsDevelopment() && cfg.Debug))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))
	router.Use(customMiddleware.Metrics(rec))
	router.Use(limiter.Middleware())

	// 超时中间件（Vercel函数有时间限制）
	router.Use(middleware.Timeout(25 * time.Second))
	router.Use(customMiddleware.MaxBodySize(cfg.MaxBodyBytes))
	router.Use(customMiddleware.ContentTypeJSON)

	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(app *App, cfg *config.Config, d Deps, rec metrics.Recorder, registry *prometheus.Registry, log *zap.Logger) {
	router := app.Router
	authHandler := handlers.NewAuthHandler(cfg, app.Tokens, d.Providers, app.Users, rec, log)
	orgsHandler := handlers.NewOrgsHandler(cfg, app.Orgs, rec, log)
	healthHandler := handlers.NewHealthHandler(cfg, d.Store)
	requireAuth := customMiddleware.AuthMiddleware(app.Tokens, app.Users, cfg.CookieName, log)

	// 健康检查端点
	router.Get("/", healthHandler.HealthCheck)
	if registry != nil {
		router.Handle("/metrics", metrics.Handler(registry))
	}

	router.Route("/auth", func(r chi.Router) {
		// 公开路由（不需要认证）
		r.Post("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/verify/{token}", authHandler.VerifyToken)
		r.Get("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/user/{id}", authHandler.GetUser)
			r.Put("/user/{id}", authHandler.UpdateUser)
			r.Get("/subscription", authHandler.GetSubscription)
			r.Put("/subscription", authHandler.UpdateSubscription)
		})
	})

	router.Route("/org", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", orgsHandler.ListOrganizations)
		r.Post("/create", orgsHandler.CreateOrganization)
		r.Route("/{orgId}", func(r chi.Router) {
			r.Get("/", orgsHandler.GetOrganization)
			r.Put("/", orgsHandler.UpdateOrganization)
			r.Delete("/", orgsHandler.DeleteOrganization)
			r.Put("/add", orgsHandler.AddUsers)
			r.Put("/remove", orgsHandler.RemoveUser)
			r.Put("/permission", orgsHandler.UpdatePermission)
			r.Put("/transfer", orgsHandler.TransferOwnership)
			r.Delete("/leave", orgsHandler.LeaveOrganization)
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, "Endpoint not found")
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}
