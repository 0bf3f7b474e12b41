package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/models"
)

// Mirror 将新建的用户与组织同步到外部副本
type Mirror interface {
	MirrorUser(ctx context.Context, user *models.User) error
	MirrorOrganization(ctx context.Context, org *models.Organization, owner *models.Membership) error
}

// NopMirror 未配置 Supabase 时使用
type NopMirror struct{}

func (NopMirror) MirrorUser(context.Context, *models.User) error { return nil }

func (NopMirror) MirrorOrganization(context.Context, *models.Organization, *models.Membership) error {
	return nil
}

// SupabaseMirror 通过 Supabase REST API (PostgREST) 写入副本
type SupabaseMirror struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Mirror = (*SupabaseMirror)(nil)

// NewSupabaseMirror 创建Supabase镜像
func NewSupabaseMirror(url, key string, logger *zap.Logger) *SupabaseMirror {
	// 确保URL格式正确
	if !strings.HasPrefix(url, "http") {
		url = "https://" + url
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupabaseMirror{
		baseURL: strings.TrimRight(url, "/"),
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// MirrorUser 写入用户行
func (s *SupabaseMirror) MirrorUser(ctx context.Context, user *models.User) error {
	return s.upsert(ctx, "users", map[string]interface{}{
		"id":             user.ID,
		"email":          user.Email,
		"name":           user.Name,
		"given_name":     user.GivenName,
		"family_name":    user.FamilyName,
		"picture":        user.Picture,
		"locale":         user.Locale,
		"subscription":   user.Subscription,
		"verified_email": user.VerifiedEmail,
		"timestamp":      user.CreatedAt.Format(time.RFC3339),
	})
}

// MirrorOrganization 写入组织及所有者成员关系
func (s *SupabaseMirror) MirrorOrganization(ctx context.Context, org *models.Organization, owner *models.Membership) error {
	err := s.upsert(ctx, "organizations", map[string]interface{}{
		"id":        org.ID,
		"name":      org.Name,
		"image":     org.Image,
		"type":      org.Type,
		"timestamp": org.CreatedAt.Format(time.RFC3339),
	})
	if err != nil || owner == nil {
		return err
	}
	return s.upsert(ctx, "user_organization", map[string]interface{}{
		"id":            owner.ID,
		"org_id":        owner.OrganizationID,
		"user_id":       owner.UserID,
		"is_owner":      owner.IsOwner,
		"is_permission": owner.Permission,
	})
}

// upsert 发送 POST 请求，主键冲突时合并
func (s *SupabaseMirror) upsert(ctx context.Context, table string, row interface{}) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rest/v1/"+table, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("supabase %s upsert failed with status %d: %s", table, resp.StatusCode, string(respBody))
	}
	return nil
}
