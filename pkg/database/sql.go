package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"quickcap-auth-backend/pkg/models"
)

// handler *sqlx.DB 与 *sqlx.Tx 的公共子集
type handler interface {
	Rebind(string) string
	SelectContext(context.Context, interface{}, string, ...interface{}) error
	GetContext(context.Context, interface{}, string, ...interface{}) error
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}

// SQLDatabase 基于 sqlx 的关系型存储（PostgreSQL / SQLite）
type SQLDatabase struct {
	db     *sqlx.DB
	h      handler
	inTx   bool
	logger *zap.Logger
}

var _ Store = (*SQLDatabase)(nil)

// OpenPostgres 连接 PostgreSQL
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*SQLDatabase, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	// 连接池参数，适合无服务器环境
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewSQLDatabase(db, logger), nil
}

// OpenSQLite 打开 SQLite 文件（开启外键约束）
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLDatabase, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)
	return NewSQLDatabase(db, logger), nil
}

// NewSQLDatabase 包装已打开的连接
func NewSQLDatabase(db *sqlx.DB, logger *zap.Logger) *SQLDatabase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLDatabase{db: db, h: db, logger: logger}
}

// WrapError 将驱动错误映射为 ErrNotFound / ErrAlreadyExists
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, pqErr.Message)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, liteErr.Error())
		}
	}
	return err
}

const userColumns = `id, email, name, given_name, family_name, picture, locale, subscription, verified_email, created_at`

// CreateUser 创建用户
func (d *SQLDatabase) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}
	query := d.h.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := d.h.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.GivenName, user.FamilyName, user.Picture,
		user.Locale, user.Subscription, user.VerifiedEmail, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", WrapError(err))
	}
	return nil
}

// GetUserByID 根据ID获取用户
func (d *SQLDatabase) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	query := d.h.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	if err := d.h.GetContext(ctx, &u, query, id); err != nil {
		return nil, WrapError(err)
	}
	return &u, nil
}

// GetUserByEmail 根据邮箱获取用户
func (d *SQLDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	query := d.h.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	if err := d.h.GetContext(ctx, &u, query, email); err != nil {
		return nil, WrapError(err)
	}
	return &u, nil
}

// ListUsersByEmails 批量按邮箱查询用户
func (d *SQLDatabase) ListUsersByEmails(ctx context.Context, emails []string) ([]models.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE email IN (?) ORDER BY email`, emails)
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := d.h.SelectContext(ctx, &users, d.h.Rebind(query), args...); err != nil {
		return nil, WrapError(err)
	}
	return users, nil
}

// UpdateUserSubscription 更新订阅等级
func (d *SQLDatabase) UpdateUserSubscription(ctx context.Context, id string, sub models.Subscription) (*models.User, error) {
	res, err := d.h.ExecContext(ctx, d.h.Rebind(`UPDATE users SET subscription = ? WHERE id = ?`), sub, id)
	if err := affectedOne(res, err); err != nil {
		return nil, err
	}
	return d.GetUserByID(ctx, id)
}

const orgColumns = `id, name, image, type, deleted_at, created_at`

// CreateOrganization 创建组织
func (d *SQLDatabase) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now()
	}
	query := d.h.Rebind(`INSERT INTO organizations (` + orgColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := d.h.ExecContext(ctx, query, org.ID, org.Name, org.Image, org.Type, org.DeletedAt, org.CreatedAt); err != nil {
		return fmt.Errorf("create organization: %w", WrapError(err))
	}
	return nil
}

// GetOrganization 获取未删除的组织
func (d *SQLDatabase) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var o models.Organization
	query := d.h.Rebind(`SELECT ` + orgColumns + ` FROM organizations WHERE id = ? AND deleted_at IS NULL`)
	if err := d.h.GetContext(ctx, &o, query, id); err != nil {
		return nil, WrapError(err)
	}
	return &o, nil
}

// LockOrganization 行锁；SQLite 单连接单写者，无需 FOR UPDATE
func (d *SQLDatabase) LockOrganization(ctx context.Context, id string) error {
	query := `SELECT id FROM organizations WHERE id = ? AND deleted_at IS NULL`
	if d.db.DriverName() == "postgres" {
		query += ` FOR UPDATE`
	}
	var got string
	return WrapError(d.h.GetContext(ctx, &got, d.h.Rebind(query), id))
}

// UpdateOrganizationName 重命名组织
func (d *SQLDatabase) UpdateOrganizationName(ctx context.Context, id, name string) (*models.Organization, error) {
	res, err := d.h.ExecContext(ctx,
		d.h.Rebind(`UPDATE organizations SET name = ? WHERE id = ? AND deleted_at IS NULL`), name, id)
	if err := affectedOne(res, err); err != nil {
		return nil, err
	}
	return d.GetOrganization(ctx, id)
}

// SoftDeleteOrganization 软删除组织
func (d *SQLDatabase) SoftDeleteOrganization(ctx context.Context, id string, at time.Time) error {
	res, err := d.h.ExecContext(ctx,
		d.h.Rebind(`UPDATE organizations SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`), at.UTC(), id)
	return affectedOne(res, err)
}

const membershipColumns = `id, user_id, org_id, is_permission, is_owner, created_at`

// AddMembership 添加成员（重复则忽略）
func (d *SQLDatabase) AddMembership(ctx context.Context, m *models.Membership) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	query := d.h.Rebind(`INSERT INTO user_organization (` + membershipColumns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, org_id) DO NOTHING`)
	res, err := d.h.ExecContext(ctx, query, m.ID, m.UserID, m.OrganizationID, m.Permission, m.IsOwner, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("add membership: %w", WrapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetMembership 获取单个成员关系
func (d *SQLDatabase) GetMembership(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	var m models.Membership
	query := d.h.Rebind(`SELECT ` + membershipColumns + ` FROM user_organization WHERE org_id = ? AND user_id = ?`)
	if err := d.h.GetContext(ctx, &m, query, orgID, userID); err != nil {
		return nil, WrapError(err)
	}
	return &m, nil
}

type memberRow struct {
	models.User
	IsOwner    bool              `db:"is_owner"`
	Permission models.Permission `db:"is_permission"`
}

// ListOrganizationMembers 组织成员及其用户信息
func (d *SQLDatabase) ListOrganizationMembers(ctx context.Context, orgID string) ([]models.Member, error) {
	var rows []memberRow
	query := d.h.Rebind(`
		SELECT u.id, u.email, u.name, u.given_name, u.family_name, u.picture, u.locale,
		       u.subscription, u.verified_email, u.created_at, m.is_owner, m.is_permission
		FROM user_organization m
		JOIN users u ON u.id = m.user_id
		WHERE m.org_id = ?
		ORDER BY m.created_at, u.email`)
	if err := d.h.SelectContext(ctx, &rows, query, orgID); err != nil {
		return nil, WrapError(err)
	}
	members := make([]models.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, models.Member{User: r.User, IsOwner: r.IsOwner, Permission: r.Permission})
	}
	return members, nil
}

type membershipRow struct {
	models.Membership
	OrgName      string         `db:"org_name"`
	OrgImage     string         `db:"org_image"`
	OrgType      models.OrgType `db:"org_type"`
	OrgCreatedAt time.Time      `db:"org_created_at"`
}

// ListUserMemberships 用户加入的所有未删除组织
func (d *SQLDatabase) ListUserMemberships(ctx context.Context, userID string) ([]models.Membership, error) {
	var rows []membershipRow
	query := d.h.Rebind(`
		SELECT m.id, m.user_id, m.org_id, m.is_permission, m.is_owner, m.created_at,
		       o.name AS org_name, o.image AS org_image, o.type AS org_type, o.created_at AS org_created_at
		FROM user_organization m
		JOIN organizations o ON o.id = m.org_id
		WHERE m.user_id = ? AND o.deleted_at IS NULL
		ORDER BY m.created_at, o.name`)
	if err := d.h.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, WrapError(err)
	}
	out := make([]models.Membership, 0, len(rows))
	for _, r := range rows {
		m := r.Membership
		m.Organization = &models.Organization{
			ID:        r.OrganizationID,
			Name:      r.OrgName,
			Image:     r.OrgImage,
			Type:      r.OrgType,
			CreatedAt: r.OrgCreatedAt,
		}
		out = append(out, m)
	}
	return out, nil
}

// UpdateMembershipRole 修改成员权限
func (d *SQLDatabase) UpdateMembershipRole(ctx context.Context, orgID, userID string, perm models.Permission, isOwner bool) error {
	res, err := d.h.ExecContext(ctx,
		d.h.Rebind(`UPDATE user_organization SET is_permission = ?, is_owner = ? WHERE org_id = ? AND user_id = ?`),
		perm, isOwner, orgID, userID)
	return affectedOne(res, err)
}

// DeleteMemberships 批量移除成员
func (d *SQLDatabase) DeleteMemberships(ctx context.Context, orgID string, userIDs []string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM user_organization WHERE org_id = ? AND user_id IN (?)`, orgID, userIDs)
	if err != nil {
		return 0, err
	}
	res, err := d.h.ExecContext(ctx, d.h.Rebind(query), args...)
	if err != nil {
		return 0, WrapError(err)
	}
	return res.RowsAffected()
}

// WithTx 在事务中执行 fn
func (d *SQLDatabase) WithTx(ctx context.Context, fn func(Store) error) error {
	if d.inTx {
		return fn(d)
	}
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStore := &SQLDatabase{db: d.db, h: tx, inTx: true, logger: d.logger}
	if err := fn(txStore); err != nil {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			d.logger.Error("rollback failed", zap.Error(rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthCheck 健康检查
func (d *SQLDatabase) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close 关闭连接
func (d *SQLDatabase) Close() error {
	return d.db.Close()
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return WrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
