package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/database"
	"quickcap-auth-backend/pkg/models"
)

// ErrUserCreationFailed 首次登录建号失败
var ErrUserCreationFailed = apperror.Internal("User creation failed", nil)

// UserDirectory 用户目录：查询、建号与成员关系装配
type UserDirectory struct {
	store  database.Store
	mirror database.Mirror
	logger *zap.Logger
}

// NewUserDirectory 创建用户目录
func NewUserDirectory(store database.Store, mirror database.Mirror, logger *zap.Logger) *UserDirectory {
	if mirror == nil {
		mirror = database.NopMirror{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserDirectory{store: store, mirror: mirror, logger: logger}
}

// FindByEmail 根据邮箱查找用户
func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := d.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal("Failed to load user", err)
	}
	return u, nil
}

// GetByID 根据ID查找用户
func (d *UserDirectory) GetByID(ctx context.Context, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.BadRequest("Invalid request")
	}
	u, err := d.store.GetUserByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal("Failed to load user", err)
	}
	return u, nil
}

// AttachMemberships 装配用户所属的全部组织
func (d *UserDirectory) AttachMemberships(ctx context.Context, user *models.User) (*models.UserWithOrganizations, error) {
	memberships, err := d.store.ListUserMemberships(ctx, user.ID)
	if err != nil {
		return nil, apperror.Internal("Failed to load memberships", err)
	}
	if memberships == nil {
		memberships = []models.Membership{}
	}
	return &models.UserWithOrganizations{User: *user, Organizations: memberships}, nil
}

// LoadCaller 根据 token 中的用户ID加载调用方及其成员关系
func (d *UserDirectory) LoadCaller(ctx context.Context, userID string) (*models.UserWithOrganizations, error) {
	u, err := d.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return d.AttachMemberships(ctx, u)
}

// UpdateSubscription 更新订阅等级（FREE | PREMIUM）
func (d *UserDirectory) UpdateSubscription(ctx context.Context, userID, tier string) (*models.User, error) {
	sub, ok := models.ParseSubscription(tier)
	if !ok {
		return nil, apperror.BadRequest("Invalid subscription")
	}
	u, err := d.store.UpdateUserSubscription(ctx, userID, sub)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal("Failed to update subscription", err)
	}
	return u, nil
}

// FindOrCreate 首次登录时原子地创建用户、个人组织与所有者成员关系
func (d *UserDirectory) FindOrCreate(ctx context.Context, profile *models.Profile) (*models.User, bool, error) {
	email := normalizeEmail(profile.Email)
	if email == "" {
		return nil, false, apperror.BadRequest("Invalid request")
	}
	existing, err := d.store.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, apperror.Internal("Failed to load user", err)
	}

	user := &models.User{
		Email:         email,
		Name:          strings.TrimSpace(profile.Name),
		GivenName:     profile.GivenName,
		FamilyName:    profile.FamilyName,
		Picture:       profile.Picture,
		Locale:        "en",
		Subscription:  models.SubscriptionFree,
		VerifiedEmail: profile.VerifiedEmail,
	}
	var (
		org   *models.Organization
		owner *models.Membership
	)
	err = d.store.WithTx(ctx, func(tx database.Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		var err error
		org, owner, err = createPersonal(ctx, tx, user)
		return err
	})
	if errors.Is(err, database.ErrAlreadyExists) {
		// 并发首次登录：另一请求已建号
		existing, gerr := d.store.GetUserByEmail(ctx, email)
		if gerr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, apperror.Wrap(ErrUserCreationFailed.Kind, ErrUserCreationFailed.Message, err)
	}

	d.logger.Info("user created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	if err := d.mirror.MirrorUser(ctx, user); err != nil {
		d.logger.Warn("mirror user failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	if err := d.mirror.MirrorOrganization(ctx, org, owner); err != nil {
		d.logger.Warn("mirror organization failed", zap.String("org_id", org.ID), zap.Error(err))
	}
	return user, true, nil
}

func personalName(u *models.User) string {
	name := u.Name
	if name == "" {
		name = strings.SplitN(u.Email, "@", 2)[0]
	}
	return name + models.PersonalSuffix
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeEmails 去空白、转小写、去重，保持顺序
func normalizeEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = normalizeEmail(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
