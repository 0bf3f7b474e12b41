package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Subscription 用户订阅等级
type Subscription string

const (
	SubscriptionFree    Subscription = "FREE"
	SubscriptionPremium Subscription = "PREMIUM"
)

// ParseSubscription 解析订阅等级（大小写不敏感）
func ParseSubscription(s string) (Subscription, bool) {
	switch Subscription(upper(s)) {
	case SubscriptionFree:
		return SubscriptionFree, true
	case SubscriptionPremium:
		return SubscriptionPremium, true
	}
	return "", false
}

// User 首次 OAuth 登录时创建的用户
type User struct {
	ID            string       `json:"id" db:"id"`
	Email         string       `json:"email" db:"email"`
	Name          string       `json:"name" db:"name"`
	GivenName     string       `json:"given_name" db:"given_name"`
	FamilyName    string       `json:"family_name" db:"family_name"`
	Picture       string       `json:"picture" db:"picture"`
	Locale        string       `json:"locale" db:"locale"`
	Subscription  Subscription `json:"subscription" db:"subscription"`
	VerifiedEmail bool         `json:"verified_email" db:"verified_email"`
	CreatedAt     time.Time    `json:"timestamp" db:"created_at"`
}

// UserWithOrganizations 带组织成员关系的用户（认证中间件注入到context）
type UserWithOrganizations struct {
	User
	Organizations []Membership `json:"organizations"`
}

// Membership 查找指定组织的成员关系
func (u *UserWithOrganizations) Membership(orgID string) (Membership, bool) {
	if u == nil {
		return Membership{}, false
	}
	for _, m := range u.Organizations {
		if m.OrganizationID == orgID {
			return m, true
		}
	}
	return Membership{}, false
}

// Profile 身份提供方换取授权码后返回的用户信息
type Profile struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
	VerifiedEmail bool   `json:"verified_email"`
}

// LoginRequest POST /auth/login 请求体
type LoginRequest struct {
	Provider           string `json:"provider" validate:"required"`
	RedirectAfterLogin string `json:"redirectAfterLogin" validate:"required,url"`
}

// UpdateSubscriptionRequest PUT /auth/subscription 请求体
type UpdateSubscriptionRequest struct {
	Subscription string `json:"subscription" validate:"required"`
}

// TokenClaims 会话 token 载荷 {sub, email, name, exp}
type TokenClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Exp   int64  `json:"exp"`
	Iat   int64  `json:"iat"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return c.Sub, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
