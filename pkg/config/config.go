package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 默认JWT密钥（仅用于本地开发）
const defaultJWTSecret = "your-local-development-secret-key"

// 支持的存储驱动
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverLocal    = "local"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"3000"`

	// 数据库配置
	DBDriver     string `env:"DB_DRIVER" envDefault:"local"`
	PostgresDSN  string `env:"POSTGRES_DSN"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/quickcap.db"`
	LocalDataDir string `env:"LOCAL_DATA_DIR"`
	AutoMigrate  bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Supabase 镜像
	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_SERVICE_KEY"`

	// JWT配置
	JWTSecret string        `env:"JWT_SECRET" envDefault:"your-local-development-secret-key"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	StateTTL  time.Duration `env:"STATE_TTL" envDefault:"10m"`

	// OAuth配置
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	ServiceURL         string `env:"SERVICE_URL" envDefault:"http://localhost:3000"`

	// Cookie配置
	CookieName   string `env:"COOKIE_NAME" envDefault:"accesstoken"`
	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool   `env:"COOKIE_SECURE"`

	// CORS配置
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// 限流与请求体
	RateLimitRPM   int   `env:"RATE_LIMIT_RPM" envDefault:"120"`
	RateLimitBurst int   `env:"RATE_LIMIT_BURST" envDefault:"30"`
	MaxBodyBytes   int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	// 日志与监控
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`

	// 调试配置
	Debug bool `env:"DEBUG"`
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() (*Config, error) {
	// 根据环境加载对应的 .env 文件，已存在的环境变量优先
	switch os.Getenv("ENVIRONMENT") {
	case "production":
		_ = godotenv.Load(".env.production")
	default:
		_ = godotenv.Load(".env.local")
	}
	return Parse(nil)
}

// Parse 从给定环境变量解析配置，environ 为 nil 时读取进程环境
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment variables: %w", err)
	}

	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.SupabaseKey = strings.TrimSpace(cfg.SupabaseKey)
	cfg.ServiceURL = strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	for i, o := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(o)
	}

	// 生产环境关闭调试，cookie 强制 Secure
	if cfg.IsProduction() {
		cfg.Debug = false
		cfg.CookieSecure = true
	}
	return cfg, nil
}

// 缓存的配置（每次冷启动初始化一次）
var (
	cachedConfig *Config
	cachedErr    error
	configOnce   sync.Once
)

// GetCached 进程级缓存的配置，热调用之间复用
func GetCached() (*Config, error) {
	configOnce.Do(func() {
		cachedConfig, cachedErr = LoadConfig()
	})
	return cachedConfig, cachedErr
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IsProduction() && (c.JWTSecret == defaultJWTSecret || len(c.JWTSecret) < 32) {
		return errors.New("JWT_SECRET must be set to a strong value in production")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.StateTTL <= 0 {
		return errors.New("STATE_TTL must be positive")
	}

	switch c.DBDriver {
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	case DriverLocal:
		if c.IsProduction() {
			return errors.New("DB_DRIVER=local is not allowed in production")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if (c.SupabaseURL == "") != (c.SupabaseKey == "") {
		return errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}
	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// CallbackURL OAuth 回调地址
func (c *Config) CallbackURL() string {
	return c.ServiceURL + "/auth/callback"
}

// MirrorEnabled 是否启用 Supabase 镜像
func (c *Config) MirrorEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}
