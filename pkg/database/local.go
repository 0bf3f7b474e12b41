package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/models"
)

// localState 本地数据库的全部数据，可整体序列化为 JSON
type localState struct {
	Users         map[string]models.User         `json:"users"`
	Organizations map[string]models.Organization `json:"organizations"`
	Memberships   map[string]models.Membership   `json:"memberships"`
}

func newLocalState() *localState {
	return &localState{
		Users:         map[string]models.User{},
		Organizations: map[string]models.Organization{},
		Memberships:   map[string]models.Membership{},
	}
}

func (s *localState) clone() *localState {
	c := newLocalState()
	for k, v := range s.Users {
		c.Users[k] = v
	}
	for k, v := range s.Organizations {
		c.Organizations[k] = v
	}
	for k, v := range s.Memberships {
		c.Memberships[k] = v
	}
	return c
}

// LocalDatabase 内存数据库（开发与测试用），可选持久化到 JSON 文件
type LocalDatabase struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *localState
	file  string
	// 非空表示事务内的工作副本
	parent *LocalDatabase

	logger *zap.Logger
}

var _ Store = (*LocalDatabase)(nil)

// NewLocalDatabase 创建本地数据库；dataDir 为空时仅驻留内存
func NewLocalDatabase(dataDir string, logger *zap.Logger) (*LocalDatabase, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := &LocalDatabase{state: newLocalState(), logger: logger}
	if dataDir == "" {
		return db, nil
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db.file = filepath.Join(dataDir, "quickcap.json")
	raw, err := os.ReadFile(db.file)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return db, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", db.file, err)
	}
	loaded := newLocalState()
	if err := json.Unmarshal(raw, loaded); err != nil {
		return nil, fmt.Errorf("decode %s: %w", db.file, err)
	}
	db.state = loaded
	return db, nil
}

// NewMemoryDatabase 纯内存数据库
func NewMemoryDatabase() *LocalDatabase {
	db, _ := NewLocalDatabase("", nil)
	return db
}

// mutate 在写锁下执行 fn 并落盘；事务外的写入与事务串行
func (db *LocalDatabase) mutate(fn func(s *localState) error) error {
	if db.parent == nil {
		db.txMu.Lock()
		defer db.txMu.Unlock()
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := fn(db.state); err != nil {
		return err
	}
	return db.persistLocked()
}

func (db *LocalDatabase) persistLocked() error {
	if db.file == "" {
		return nil
	}
	raw, err := json.MarshalIndent(db.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := db.file + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, db.file)
}

// CreateUser 创建用户
func (db *LocalDatabase) CreateUser(_ context.Context, user *models.User) error {
	return db.mutate(func(s *localState) error {
		for _, u := range s.Users {
			if u.Email == user.Email {
				return fmt.Errorf("create user: %w: email %s", ErrAlreadyExists, user.Email)
			}
		}
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		if _, ok := s.Users[user.ID]; ok {
			return fmt.Errorf("create user: %w: id %s", ErrAlreadyExists, user.ID)
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now()
		}
		s.Users[user.ID] = *user
		return nil
	})
}

// GetUserByID 根据ID获取用户
func (db *LocalDatabase) GetUserByID(_ context.Context, id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.state.Users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *LocalDatabase) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, u := range db.state.Users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsersByEmails 批量按邮箱查询用户
func (db *LocalDatabase) ListUsersByEmails(_ context.Context, emails []string) ([]models.User, error) {
	want := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		want[e] = struct{}{}
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	var users []models.User
	for _, u := range db.state.Users {
		if _, ok := want[u.Email]; ok {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// UpdateUserSubscription 更新订阅等级
func (db *LocalDatabase) UpdateUserSubscription(_ context.Context, id string, sub models.Subscription) (*models.User, error) {
	var out models.User
	err := db.mutate(func(s *localState) error {
		u, ok := s.Users[id]
		if !ok {
			return ErrNotFound
		}
		u.Subscription = sub
		s.Users[id] = u
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrganization 创建组织
func (db *LocalDatabase) CreateOrganization(_ context.Context, org *models.Organization) error {
	return db.mutate(func(s *localState) error {
		if org.ID == "" {
			org.ID = uuid.NewString()
		}
		if _, ok := s.Organizations[org.ID]; ok {
			return fmt.Errorf("create organization: %w: id %s", ErrAlreadyExists, org.ID)
		}
		if org.CreatedAt.IsZero() {
			org.CreatedAt = now()
		}
		s.Organizations[org.ID] = *org
		return nil
	})
}

// GetOrganization 获取未删除的组织
func (db *LocalDatabase) GetOrganization(_ context.Context, id string) (*models.Organization, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.state.Organizations[id]
	if !ok || o.IsDeleted() {
		return nil, ErrNotFound
	}
	return &o, nil
}

// LockOrganization 事务已持有 txMu，这里只校验组织存在
func (db *LocalDatabase) LockOrganization(ctx context.Context, id string) error {
	_, err := db.GetOrganization(ctx, id)
	return err
}

// UpdateOrganizationName 重命名组织
func (db *LocalDatabase) UpdateOrganizationName(_ context.Context, id, name string) (*models.Organization, error) {
	var out models.Organization
	err := db.mutate(func(s *localState) error {
		o, ok := s.Organizations[id]
		if !ok || o.IsDeleted() {
			return ErrNotFound
		}
		o.Name = name
		s.Organizations[id] = o
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SoftDeleteOrganization 软删除组织
func (db *LocalDatabase) SoftDeleteOrganization(_ context.Context, id string, at time.Time) error {
	return db.mutate(func(s *localState) error {
		o, ok := s.Organizations[id]
		if !ok || o.IsDeleted() {
			return ErrNotFound
		}
		at := at.UTC()
		o.DeletedAt = &at
		s.Organizations[id] = o
		return nil
	})
}

// AddMembership 添加成员（重复则忽略）
func (db *LocalDatabase) AddMembership(_ context.Context, m *models.Membership) (bool, error) {
	created := false
	err := db.mutate(func(s *localState) error {
		if _, ok := s.Users[m.UserID]; !ok {
			return fmt.Errorf("add membership: unknown user %s", m.UserID)
		}
		if _, ok := s.Organizations[m.OrganizationID]; !ok {
			return fmt.Errorf("add membership: unknown organization %s", m.OrganizationID)
		}
		for _, existing := range s.Memberships {
			if existing.UserID == m.UserID && existing.OrganizationID == m.OrganizationID {
				return nil
			}
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now()
		}
		stored := *m
		stored.Organization = nil
		s.Memberships[m.ID] = stored
		created = true
		return nil
	})
	return created, err
}

// GetMembership 获取单个成员关系
func (db *LocalDatabase) GetMembership(_ context.Context, orgID, userID string) (*models.Membership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, m := range db.state.Memberships {
		if m.OrganizationID == orgID && m.UserID == userID {
			m := m
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

// ListOrganizationMembers 组织成员及其用户信息
func (db *LocalDatabase) ListOrganizationMembers(_ context.Context, orgID string) ([]models.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows := db.membershipsLocked(func(m models.Membership) bool { return m.OrganizationID == orgID })
	members := make([]models.Member, 0, len(rows))
	for _, m := range rows {
		u, ok := db.state.Users[m.UserID]
		if !ok {
			continue
		}
		members = append(members, models.Member{User: u, IsOwner: m.IsOwner, Permission: m.Permission})
	}
	return members, nil
}

// ListUserMemberships 用户加入的所有未删除组织
func (db *LocalDatabase) ListUserMemberships(_ context.Context, userID string) ([]models.Membership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows := db.membershipsLocked(func(m models.Membership) bool { return m.UserID == userID })
	out := make([]models.Membership, 0, len(rows))
	for _, m := range rows {
		o, ok := db.state.Organizations[m.OrganizationID]
		if !ok || o.IsDeleted() {
			continue
		}
		m.Organization = &o
		out = append(out, m)
	}
	return out, nil
}

// membershipsLocked 按插入顺序返回匹配的成员关系
func (db *LocalDatabase) membershipsLocked(match func(models.Membership) bool) []models.Membership {
	var rows []models.Membership
	for _, m := range db.state.Memberships {
		if match(m) {
			rows = append(rows, m)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows
}

// UpdateMembershipRole 修改成员权限
func (db *LocalDatabase) UpdateMembershipRole(_ context.Context, orgID, userID string, perm models.Permission, isOwner bool) error {
	return db.mutate(func(s *localState) error {
		for id, m := range s.Memberships {
			if m.OrganizationID == orgID && m.UserID == userID {
				m.Permission = perm
				m.IsOwner = isOwner
				s.Memberships[id] = m
				return nil
			}
		}
		return ErrNotFound
	})
}

// DeleteMemberships 批量移除成员
func (db *LocalDatabase) DeleteMemberships(_ context.Context, orgID string, userIDs []string) (int64, error) {
	remove := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		remove[id] = struct{}{}
	}
	var n int64
	err := db.mutate(func(s *localState) error {
		for id, m := range s.Memberships {
			if _, ok := remove[m.UserID]; ok && m.OrganizationID == orgID {
				delete(s.Memberships, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

// WithTx 在工作副本上执行事务，成功后整体替换；出错时直接丢弃副本
func (db *LocalDatabase) WithTx(_ context.Context, fn func(Store) error) error {
	if db.parent != nil {
		return fn(db)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	work := &LocalDatabase{state: db.state.clone(), parent: db, logger: db.logger}
	db.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.state = work.state
	return db.persistLocked()
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck(context.Context) error {
	return nil
}

// Close 关闭数据库（落盘）
func (db *LocalDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.persistLocked()
}
