package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/models"
	"quickcap-auth-backend/pkg/utils"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	UserContextKey  ContextKey = "user"
	TokenContextKey ContextKey = "token"
)

// TokenVerifier 校验会话 token
type TokenVerifier interface {
	Verify(token string) (*models.TokenClaims, error)
}

// CallerLoader 加载调用方及其成员关系
type CallerLoader interface {
	LoadCaller(ctx context.Context, userID string) (*models.UserWithOrganizations, error)
}

// ExtractToken 从 Authorization: Bearer 头或 cookie 中取 token
func ExtractToken(r *http.Request, cookieName string) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")); token != authHeader && token != "" {
			return token
		}
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// AuthMiddleware 认证中间件：校验 token，加载调用方及其组织，写入 context
func AuthMiddleware(tokens TokenVerifier, users CallerLoader, cookieName string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, token, err := Authenticate(r, tokens, users, cookieName)
			if err != nil {
				logger.Debug("authentication failed", zap.String("path", r.URL.Path), zap.Error(err))
				utils.WriteError(w, err)
				return
			}
			setCallerEmail(r.Context(), caller.Email)
			ctx := context.WithValue(r.Context(), UserContextKey, caller)
			ctx = context.WithValue(ctx, TokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate 解析请求的调用方；任何失败都返回 BadRequest("Invalid token")，原因保留在错误链中
func Authenticate(r *http.Request, tokens TokenVerifier, users CallerLoader, cookieName string) (*models.UserWithOrganizations, string, error) {
	token := ExtractToken(r, cookieName)
	if token == "" {
		return nil, "", apperror.BadRequest("Invalid token")
	}
	caller, err := LoadFromToken(r.Context(), token, tokens, users)
	if err != nil {
		return nil, "", err
	}
	return caller, token, nil
}

// LoadFromToken 校验 token 并加载其 sub 对应的用户
func LoadFromToken(ctx context.Context, token string, tokens TokenVerifier, users CallerLoader) (*models.UserWithOrganizations, error) {
	claims, err := tokens.Verify(token)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindBadRequest, "Invalid token", err)
	}
	caller, err := users.LoadCaller(ctx, claims.Sub)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, apperror.Wrap(apperror.KindBadRequest, "Invalid token", err)
		}
		return nil, err
	}
	return caller, nil
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.UserWithOrganizations, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.UserWithOrganizations)
	return user, ok && user != nil
}

// GetTokenFromContext 当前请求的原始 token
func GetTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}

// RequireUser 要求用户必须已认证的辅助函数
func RequireUser(ctx context.Context) (*models.UserWithOrganizations, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok {
		return nil, apperror.BadRequest("Invalid token")
	}
	return user, nil
}
