package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"quickcap-auth-backend/pkg/config"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
			"X-Request-Id",
		},
		ExposedHeaders: []string{
			"ETag",
			"X-Request-Id",
		},
		// cookie 会话需要凭据
		AllowCredentials: true,
		MaxAge:           300,
	}

	// 按请求回显 Origin，凭据才会被浏览器接受
	allowed := cfg.AllowedOrigins
	corsOptions.AllowedOrigins = nil
	corsOptions.AllowOriginFunc = func(r *http.Request, origin string) bool {
		return originAllowed(origin, allowed)
	}

	return cors.Handler(corsOptions)
}

// originAllowed 支持 "*" 与前缀通配 (chrome-extension://*)
func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		switch {
		case a == "*", a == origin:
			return true
		case strings.HasSuffix(a, "*") && strings.HasPrefix(origin, strings.TrimSuffix(a, "*")):
			return true
		}
	}
	return false
}
