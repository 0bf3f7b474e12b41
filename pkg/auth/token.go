package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quickcap-auth-backend/pkg/models"
)

var (
	// ErrTokenExpired token 已过期
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid 签名错误、算法不符或载荷缺失
	ErrTokenInvalid = errors.New("token invalid")
)

const stateAudience = "oauth-state"

// TokenService 签发和校验会话 token 与 OAuth state
type TokenService struct {
	secretKey []byte
	ttl       time.Duration
	stateTTL  time.Duration
	now       func() time.Time
}

// NewTokenService 创建 token 服务
func NewTokenService(secret string, ttl, stateTTL time.Duration) *TokenService {
	return &TokenService{
		secretKey: []byte(secret),
		ttl:       ttl,
		stateTTL:  stateTTL,
		now:       time.Now,
	}
}

// TTL 会话 token 有效期
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue 为用户签发会话 token
func (s *TokenService) Issue(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &models.TokenClaims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.Name,
		Exp:   expiresAt.Unix(),
		Iat:   now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify 校验会话 token 并返回载荷
func (s *TokenService) Verify(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Sub == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

type stateClaims struct {
	Redirect string `json:"redirect"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// IssueState 把登录后的跳转地址签入短期 state
func (s *TokenService) IssueState(redirect string) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	now := s.now()
	claims := &stateClaims{
		Redirect: redirect,
		Nonce:    nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.stateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// VerifyState 校验 state 并返回跳转地址
func (s *TokenService) VerifyState(state string) (string, error) {
	claims := &stateClaims{}
	if err := s.parse(state, claims, jwt.WithAudience(stateAudience)); err != nil {
		return "", err
	}
	if claims.Redirect == "" {
		return "", fmt.Errorf("%w: missing redirect", ErrTokenInvalid)
	}
	return claims.Redirect, nil
}

func (s *TokenService) parse(tokenString string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case !token.Valid:
		return ErrTokenInvalid
	}
	return nil
}

// newNonce 16 字节随机数，RawURLEncoding 编码
func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
