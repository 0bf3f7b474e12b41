package database

import (
	"context"
	"errors"
	"time"

	"quickcap-auth-backend/pkg/models"
)

var (
	// ErrNotFound 记录不存在（或组织已软删除）
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists 唯一约束冲突
	ErrAlreadyExists = errors.New("record already exists")
)

// Store 定义数据库访问接口
type Store interface {
	// 用户
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// ListUsersByEmails 无对应用户的邮箱直接跳过
	ListUsersByEmails(ctx context.Context, emails []string) ([]models.User, error)
	UpdateUserSubscription(ctx context.Context, id string, sub models.Subscription) (*models.User, error)

	// 组织
	CreateOrganization(ctx context.Context, org *models.Organization) error
	// GetOrganization 不返回已软删除的组织
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	UpdateOrganizationName(ctx context.Context, id, name string) (*models.Organization, error)
	SoftDeleteOrganization(ctx context.Context, id string, at time.Time) error
	// LockOrganization 在事务内锁住组织行，直到事务结束
	LockOrganization(ctx context.Context, id string) error

	// 成员关系
	// AddMembership (user, org) 已存在时不插入，返回是否新建
	AddMembership(ctx context.Context, m *models.Membership) (bool, error)
	GetMembership(ctx context.Context, orgID, userID string) (*models.Membership, error)
	ListOrganizationMembers(ctx context.Context, orgID string) ([]models.Member, error)
	// ListUserMemberships 附带组织信息，跳过已软删除的组织
	ListUserMemberships(ctx context.Context, userID string) ([]models.Membership, error)
	UpdateMembershipRole(ctx context.Context, orgID, userID string, perm models.Permission, isOwner bool) error
	DeleteMemberships(ctx context.Context, orgID string, userIDs []string) (int64, error)

	// WithTx 原子执行 fn，嵌套调用并入外层事务
	WithTx(ctx context.Context, fn func(Store) error) error

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

func now() time.Time {
	return time.Now().UTC()
}
