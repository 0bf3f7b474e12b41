package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/authz"
	"quickcap-auth-backend/pkg/database"
	"quickcap-auth-backend/pkg/models"
)

var (
	errOrgNotFound  = apperror.NotFound("Organization not found")
	errInvalidName  = apperror.BadRequest("Invalid name")
	errInvalidEmail = apperror.BadRequest("Invalid email")
	errNotAMember   = apperror.NotFound("User is not a member of this organization")
)

// OrgService 组织与成员关系的业务逻辑；每个变更先经过 authz 检查
type OrgService struct {
	store  database.Store
	mirror database.Mirror
	logger *zap.Logger
	now    func() time.Time
}

// NewOrgService 创建组织服务
func NewOrgService(store database.Store, mirror database.Mirror, logger *zap.Logger) *OrgService {
	if mirror == nil {
		mirror = database.NopMirror{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrgService{store: store, mirror: mirror, logger: logger, now: time.Now}
}

// Get 查看组织（成员可见）
func (s *OrgService) Get(ctx context.Context, caller *models.UserWithOrganizations, orgID string) (*models.OrganizationDetail, error) {
	if err := authz.Check(caller, orgID, authz.OpView); err != nil {
		return nil, err
	}
	return s.detail(ctx, s.store, orgID)
}

// ListMine 调用方所属的全部组织
func (s *OrgService) ListMine(ctx context.Context, caller *models.UserWithOrganizations) ([]models.Membership, error) {
	if caller == nil {
		return nil, apperror.BadRequest("Invalid token")
	}
	memberships, err := s.store.ListUserMemberships(ctx, caller.ID)
	if err != nil {
		return nil, apperror.Internal("Failed to load organizations", err)
	}
	if memberships == nil {
		memberships = []models.Membership{}
	}
	return memberships, nil
}

// Create 创建组织，调用方成为所有者
func (s *OrgService) Create(ctx context.Context, caller *models.UserWithOrganizations, name string) (*models.OrganizationDetail, error) {
	if err := authz.Check(caller, "", authz.OpCreate); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidName
	}
	return s.create(ctx, name, models.OrgTypeOrganization, caller.ID)
}

func (s *OrgService) create(ctx context.Context, name string, typ models.OrgType, ownerID string) (*models.OrganizationDetail, error) {
	var (
		org    *models.Organization
		owner  *models.Membership
		detail *models.OrganizationDetail
	)
	err := s.store.WithTx(ctx, func(tx database.Store) error {
		var err error
		if org, owner, err = createOrganization(ctx, tx, name, typ, ownerID); err != nil {
			return err
		}
		detail, err = s.detail(ctx, tx, org.ID)
		return err
	})
	if err != nil {
		return nil, asAppError(err, "Failed to create organization")
	}
	s.logger.Info("organization created",
		zap.String("org_id", org.ID), zap.String("type", string(typ)), zap.String("owner_id", ownerID))
	if err := s.mirror.MirrorOrganization(ctx, org, owner); err != nil {
		s.logger.Warn("mirror organization failed", zap.String("org_id", org.ID), zap.Error(err))
	}
	return detail, nil
}

// createPersonal 个人组织（名称追加 "'s Personal"），只在首次登录建号的事务里调用
func createPersonal(ctx context.Context, tx database.Store, user *models.User) (*models.Organization, *models.Membership, error) {
	return createOrganization(ctx, tx, personalName(user), models.OrgTypePersonal, user.ID)
}

// createOrganization 插入组织及所有者成员关系，st 由调用方放在事务中
func createOrganization(ctx context.Context, st database.Store, name string, typ models.OrgType, ownerID string) (*models.Organization, *models.Membership, error) {
	org := &models.Organization{Name: name, Type: typ}
	if err := st.CreateOrganization(ctx, org); err != nil {
		return nil, nil, err
	}
	owner := &models.Membership{
		UserID:         ownerID,
		OrganizationID: org.ID,
		Permission:     models.PermissionAll,
		IsOwner:        true,
	}
	if _, err := st.AddMembership(ctx, owner); err != nil {
		return nil, nil, err
	}
	return org, owner, nil
}

// Rename 重命名组织（仅所有者）
func (s *OrgService) Rename(ctx context.Context, caller *models.UserWithOrganizations, orgID, name string) (*models.OrganizationDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidName
	}
	if err := authz.Check(caller, orgID, authz.OpRename); err != nil {
		return nil, err
	}
	if _, err := s.store.UpdateOrganizationName(ctx, orgID, name); err != nil {
		return nil, asAppError(err, "Failed to update organization")
	}
	return s.detail(ctx, s.store, orgID)
}

// SoftDelete 软删除组织；个人组织不可删除
func (s *OrgService) SoftDelete(ctx context.Context, caller *models.UserWithOrganizations, orgID string) error {
	if err := authz.Check(caller, orgID, authz.OpDelete); err != nil {
		return err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return asAppError(err, "Failed to load organization")
	}
	if org.Type == models.OrgTypePersonal {
		return authz.ErrPersonalOrg
	}
	if err := s.store.SoftDeleteOrganization(ctx, orgID, s.now()); err != nil {
		return asAppError(err, "Failed to delete organization")
	}
	s.logger.Info("organization deleted", zap.String("org_id", orgID), zap.String("by", caller.ID))
	return nil
}

// AddMembers 按邮箱添加成员（READ）；已是成员的跳过，任一邮箱无对应用户则 NotFound
func (s *OrgService) AddMembers(ctx context.Context, caller *models.UserWithOrganizations, orgID string, emails []string) (*models.OrganizationDetail, error) {
	emails = normalizeEmails(emails)
	if len(emails) == 0 {
		return nil, errInvalidEmail
	}
	if err := authz.Check(caller, orgID, authz.OpAddMember); err != nil {
		return nil, err
	}
	users, err := s.resolveUsers(ctx, emails)
	if err != nil {
		return nil, err
	}

	var detail *models.OrganizationDetail
	err = s.store.WithTx(ctx, func(tx database.Store) error {
		if _, err := tx.GetOrganization(ctx, orgID); err != nil {
			return err
		}
		for _, u := range users {
			if _, err := tx.AddMembership(ctx, &models.Membership{
				UserID:         u.ID,
				OrganizationID: orgID,
				Permission:     models.PermissionRead,
			}); err != nil {
				return err
			}
		}
		detail, err = s.detail(ctx, tx, orgID)
		return err
	})
	if err != nil {
		return nil, asAppError(err, "Failed to add members")
	}
	return detail, nil
}

// RemoveMembers 按邮箱移除成员；非成员忽略，所有者不能移除自己
func (s *OrgService) RemoveMembers(ctx context.Context, caller *models.UserWithOrganizations, orgID string, emails []string) (*models.OrganizationDetail, error) {
	emails = normalizeEmails(emails)
	if len(emails) == 0 {
		return nil, errInvalidEmail
	}
	if err := authz.Check(caller, orgID, authz.OpRemoveMember); err != nil {
		return nil, err
	}
	users, err := s.resolveUsers(ctx, emails)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if err := authz.CheckTarget(caller, authz.OpRemoveMember, u.ID, ""); err != nil {
			return nil, err
		}
		ids = append(ids, u.ID)
	}

	var detail *models.OrganizationDetail
	err = s.store.WithTx(ctx, func(tx database.Store) error {
		if _, err := tx.GetOrganization(ctx, orgID); err != nil {
			return err
		}
		if _, err := tx.DeleteMemberships(ctx, orgID, ids); err != nil {
			return err
		}
		var err error
		detail, err = s.detail(ctx, tx, orgID)
		return err
	})
	if err != nil {
		return nil, asAppError(err, "Failed to remove members")
	}
	return detail, nil
}

// UpdateRole 修改成员权限。设为 ALL 即转移所有权：原所有者降为 UPLOAD。
func (s *OrgService) UpdateRole(ctx context.Context, caller *models.UserWithOrganizations, orgID, email, permission string) (*models.OrganizationDetail, error) {
	perm, ok := models.ParsePermission(permission)
	if !ok {
		return nil, apperror.BadRequest("Invalid permission")
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, errInvalidEmail
	}
	if err := authz.Check(caller, orgID, authz.OpChangeRole); err != nil {
		return nil, err
	}
	users, err := s.resolveUsers(ctx, []string{email})
	if err != nil {
		return nil, err
	}
	target := users[0]
	if err := authz.CheckTarget(caller, authz.OpChangeRole, target.ID, perm); err != nil {
		return nil, err
	}
	if perm.Owner() {
		return s.transfer(ctx, caller, orgID, target)
	}

	var detail *models.OrganizationDetail
	err = s.store.WithTx(ctx, func(tx database.Store) error {
		m, err := tx.GetMembership(ctx, orgID, target.ID)
		if errors.Is(err, database.ErrNotFound) {
			return errNotAMember
		}
		if err != nil {
			return err
		}
		if m.IsOwner {
			return authz.ErrOwnerDemote
		}
		if err := tx.UpdateMembershipRole(ctx, orgID, target.ID, perm, false); err != nil {
			return err
		}
		detail, err = s.detail(ctx, tx, orgID)
		return err
	})
	if err != nil {
		return nil, asAppError(err, "Failed to update permission")
	}
	return detail, nil
}

// TransferOwnership 将所有权转给另一成员
func (s *OrgService) TransferOwnership(ctx context.Context, caller *models.UserWithOrganizations, orgID, newOwnerEmail string) (*models.OrganizationDetail, error) {
	email := normalizeEmail(newOwnerEmail)
	if email == "" {
		return nil, errInvalidEmail
	}
	if err := authz.Check(caller, orgID, authz.OpTransfer); err != nil {
		return nil, err
	}
	users, err := s.resolveUsers(ctx, []string{email})
	if err != nil {
		return nil, err
	}
	return s.transfer(ctx, caller, orgID, users[0])
}

// transfer 在同一事务中提升 target 并把其他所有者降为 UPLOAD，组织始终只有一个所有者
func (s *OrgService) transfer(ctx context.Context, caller *models.UserWithOrganizations, orgID string, target models.User) (*models.OrganizationDetail, error) {
	var detail *models.OrganizationDetail
	err := s.store.WithTx(ctx, func(tx database.Store) error {
		// 锁住组织行后重新确认调用方仍是所有者
		if err := tx.LockOrganization(ctx, orgID); err != nil {
			return err
		}
		cm, err := tx.GetMembership(ctx, orgID, caller.ID)
		if errors.Is(err, database.ErrNotFound) || (err == nil && !cm.IsOwner) {
			return authz.ErrNotOwner
		}
		if err != nil {
			return err
		}
		if _, err := tx.GetMembership(ctx, orgID, target.ID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return errNotAMember
			}
			return err
		}
		members, err := tx.ListOrganizationMembers(ctx, orgID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.IsOwner && m.User.ID != target.ID {
				if err := tx.UpdateMembershipRole(ctx, orgID, m.User.ID, models.PermissionUpload, false); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateMembershipRole(ctx, orgID, target.ID, models.PermissionAll, true); err != nil {
			return err
		}
		detail, err = s.detail(ctx, tx, orgID)
		return err
	})
	if err != nil {
		return nil, asAppError(err, "Failed to transfer ownership")
	}
	s.logger.Info("ownership transferred",
		zap.String("org_id", orgID), zap.String("from", caller.ID), zap.String("to", target.ID))
	return detail, nil
}

// Leave 退出组织；所有者需先转移所有权
func (s *OrgService) Leave(ctx context.Context, caller *models.UserWithOrganizations, orgID string) error {
	if err := authz.Check(caller, orgID, authz.OpLeave); err != nil {
		return err
	}
	if _, err := s.store.DeleteMemberships(ctx, orgID, []string{caller.ID}); err != nil {
		return asAppError(err, "Failed to leave organization")
	}
	return nil
}

// resolveUsers 邮箱转用户，任一邮箱不存在则 NotFound
func (s *OrgService) resolveUsers(ctx context.Context, emails []string) ([]models.User, error) {
	users, err := s.store.ListUsersByEmails(ctx, emails)
	if err != nil {
		return nil, apperror.Internal("Failed to load users", err)
	}
	if len(users) == len(emails) {
		return users, nil
	}
	found := make(map[string]struct{}, len(users))
	for _, u := range users {
		found[u.Email] = struct{}{}
	}
	var missing []string
	for _, e := range emails {
		if _, ok := found[e]; !ok {
			missing = append(missing, e)
		}
	}
	return nil, apperror.NotFound(fmt.Sprintf("User not found: %s", strings.Join(missing, ", ")))
}

func (s *OrgService) detail(ctx context.Context, st database.Store, orgID string) (*models.OrganizationDetail, error) {
	org, err := st.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, asAppError(err, "Failed to load organization")
	}
	members, err := st.ListOrganizationMembers(ctx, orgID)
	if err != nil {
		return nil, apperror.Internal("Failed to load members", err)
	}
	return &models.OrganizationDetail{Organization: *org, Users: members}, nil
}

// asAppError 保留已分类错误，转换存储层哨兵错误
func asAppError(err error, msg string) error {
	var appErr *apperror.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, database.ErrNotFound):
		return errOrgNotFound
	case errors.Is(err, database.ErrAlreadyExists):
		return apperror.Wrap(apperror.KindConflict, msg, err)
	}
	return apperror.Internal(msg, err)
}
