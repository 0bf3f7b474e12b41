package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/models"
)

// ProviderGoogle 目前唯一支持的身份提供方
const ProviderGoogle = "google"

const defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Provider 身份提供方（授权码模式）
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*models.Profile, error)
}

// GoogleConfig Google OAuth 配置
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// 测试时可覆盖
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	HTTPClient  *http.Client
}

// GoogleProvider Google OAuth 2.0
type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

var _ Provider = (*GoogleProvider)(nil)

// NewGoogleProvider 创建 Google 身份提供方
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	endpoint := endpoints.Google
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultGoogleUserInfoURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  cfg.HTTPClient,
	}
}

// AuthCodeURL 生成授权跳转地址
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

// Exchange 用授权码换取 access token 并拉取用户信息
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*models.Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("empty email in user info response")
	}

	return &models.Profile{
		Email:         strings.ToLower(strings.TrimSpace(info.Email)),
		Name:          info.Name,
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
		Picture:       info.Picture,
		Locale:        info.Locale,
		VerifiedEmail: info.VerifiedEmail,
	}, nil
}

// Providers 按名称注册的身份提供方
type Providers map[string]Provider

// Get 查找提供方，未知名称返回 BadRequest
func (ps Providers) Get(name string) (Provider, error) {
	p, ok := ps[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, apperror.BadRequest("Invalid provider")
	}
	return p, nil
}
