package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/auth"
	"quickcap-auth-backend/pkg/authz"
	"quickcap-auth-backend/pkg/config"
	"quickcap-auth-backend/pkg/metrics"
	"quickcap-auth-backend/pkg/middleware"
	"quickcap-auth-backend/pkg/models"
	"quickcap-auth-backend/pkg/service"
	"quickcap-auth-backend/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config    *config.Config
	tokens    *auth.TokenService
	providers auth.Providers
	users     *service.UserDirectory
	metrics   metrics.Recorder
	logger    *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, tokens *auth.TokenService, providers auth.Providers, users *service.UserDirectory, rec metrics.Recorder, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{config: cfg, tokens: tokens, providers: providers, users: users, metrics: rec, logger: logger}
}

// LoginResponse POST /auth/login 返回的跳转信息
type LoginResponse struct {
	URL  string `json:"url"`
	Code int    `json:"code"`
}

// Login POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	provider, err := h.providers.Get(req.Provider)
	if err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.tokens.IssueState(req.RedirectAfterLogin)
	if err != nil {
		h.writeError(w, apperror.Internal("Failed to create login state", err))
		return
	}
	utils.WriteSuccessResponse(w, LoginResponse{URL: provider.AuthCodeURL(state), Code: http.StatusFound})
}

// Callback GET /auth/callback?code&state
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		h.writeError(w, apperror.BadRequest("Authorization code is missing"))
		return
	}
	redirect, err := h.tokens.VerifyState(r.URL.Query().Get("state"))
	if err != nil {
		h.writeError(w, apperror.Wrap(apperror.KindBadRequest, "Invalid request", err))
		return
	}
	provider, err := h.providers.Get(auth.ProviderGoogle)
	if err != nil {
		h.writeError(w, err)
		return
	}
	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.writeError(w, apperror.Wrap(apperror.KindBadRequest, "Invalid request", err))
		return
	}
	user, created, err := h.users.FindOrCreate(r.Context(), profile)
	if err != nil {
		h.writeError(w, err)
		return
	}
	token, expiresAt, err := h.tokens.Issue(user)
	if err != nil {
		h.writeError(w, apperror.Internal("Failed to issue token", err))
		return
	}
	h.metrics.RecordLogin(auth.ProviderGoogle, created)

	target, err := withToken(redirect, token)
	if err != nil {
		h.writeError(w, apperror.Wrap(apperror.KindBadRequest, "Invalid request", err))
		return
	}
	h.setSessionCookie(w, token, expiresAt)
	http.Redirect(w, r, target, http.StatusFound)
}

// withToken 把 token 追加到跳转地址的查询参数
func withToken(redirect, token string) (string, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyToken GET /auth/verify/{token}
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		h.writeError(w, apperror.BadRequest("Invalid request"))
		return
	}
	caller, err := middleware.LoadFromToken(r.Context(), token, h.tokens, h.users)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, caller)
}

// Logout GET /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
	})
	utils.WriteSuccessResponse(w, map[string]string{"message": "Logout success"})
}

// GetUser GET /auth/user/{id}：本人或同组织成员可见
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if user.ID != caller.ID {
		target, err := h.users.AttachMemberships(r.Context(), user)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if !sharesOrganization(caller, target) {
			h.writeError(w, apperror.Forbidden("You can not view this user"))
			return
		}
	}
	utils.WriteSuccessResponse(w, user)
}

func sharesOrganization(a, b *models.UserWithOrganizations) bool {
	for _, m := range b.Organizations {
		if authz.IsMember(a, m.OrganizationID) {
			return true
		}
	}
	return false
}

// UpdateUser PUT /auth/user/{id}：仅本人可修改订阅
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if chi.URLParam(r, "id") != caller.ID {
		h.writeError(w, apperror.Forbidden("You can only update your own account"))
		return
	}
	h.updateSubscription(w, r, caller)
}

// GetSubscription GET /auth/subscription
func (h *AuthHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"user_id":      caller.ID,
		"subscription": caller.Subscription,
	})
}

// UpdateSubscription PUT /auth/subscription
func (h *AuthHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.RequireUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.updateSubscription(w, r, caller)
}

func (h *AuthHandler) updateSubscription(w http.ResponseWriter, r *http.Request, caller *models.UserWithOrganizations) {
	var req models.UpdateSubscriptionRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, apperror.Wrap(apperror.KindBadRequest, "Invalid subscription", err))
		return
	}
	user, err := h.users.UpdateSubscription(r.Context(), caller.ID, req.Subscription)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("subscription updated", zap.String("user_id", user.ID), zap.String("subscription", string(user.Subscription)))
	utils.WriteSuccessResponse(w, user)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	sameSite := http.SameSiteLaxMode
	if h.config.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: sameSite,
	})
}

func (h *AuthHandler) writeError(w http.ResponseWriter, err error) {
	writeError(w, h.config, h.logger, err)
}

// writeError 统一错误输出：5xx 记录日志，开发环境附带原因
func writeError(w http.ResponseWriter, cfg *config.Config, logger *zap.Logger, err error) {
	if apperror.Status(err) >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	if cfg.IsDevelopment() && cfg.Debug {
		utils.WriteErrorWithDetails(w, err)
		return
	}
	utils.WriteError(w, err)
}
