// Package authz 组织权限判定，只依据调用方已加载的成员关系
package authz

import (
	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/models"
)

// Operation 组织上的操作
type Operation int

const (
	OpView Operation = iota
	OpCreate
	OpRename
	OpAddMember
	OpRemoveMember
	OpChangeRole
	OpTransfer
	OpDelete
	OpLeave
)

var operationNames = map[Operation]string{
	OpView:         "view",
	OpCreate:       "create",
	OpRename:       "rename",
	OpAddMember:    "add-member",
	OpRemoveMember: "remove-member",
	OpChangeRole:   "change-role",
	OpTransfer:     "transfer",
	OpDelete:       "delete",
	OpLeave:        "leave",
}

func (o Operation) String() string {
	if s, ok := operationNames[o]; ok {
		return s
	}
	return "unknown"
}

// RequiresOwner 是否仅限所有者
func (o Operation) RequiresOwner() bool {
	switch o {
	case OpRename, OpAddMember, OpRemoveMember, OpChangeRole, OpTransfer, OpDelete:
		return true
	}
	return false
}

var (
	ErrNotMember   = apperror.Forbidden("You are not a member of this organization")
	ErrNotOwner    = apperror.Forbidden("You are not an owner of this organization")
	ErrOwnerLeave  = apperror.BadRequest("You can not leave organization, transfer ownership first")
	ErrOwnerSelf   = apperror.BadRequest("You can not remove yourself, transfer ownership first")
	ErrOwnerDemote = apperror.BadRequest("You can not change your own permission, transfer ownership first")
	ErrPersonalOrg = apperror.Forbidden("Personal organization can not be deleted")
)

// IsMember 调用方是否为组织成员
func IsMember(caller *models.UserWithOrganizations, orgID string) bool {
	_, ok := caller.Membership(orgID)
	return ok
}

// IsOwner 调用方是否为组织所有者
func IsOwner(caller *models.UserWithOrganizations, orgID string) bool {
	m, ok := caller.Membership(orgID)
	return ok && m.IsOwner
}

// Check 按策略表判定 op
func Check(caller *models.UserWithOrganizations, orgID string, op Operation) error {
	if caller == nil {
		return apperror.BadRequest("Invalid token")
	}
	if op == OpCreate {
		return nil
	}
	owner := IsOwner(caller, orgID)
	switch {
	case op.RequiresOwner() && !owner:
		return ErrNotOwner
	case !IsMember(caller, orgID):
		return ErrNotMember
	case op == OpLeave && owner:
		return ErrOwnerLeave
	}
	if op == OpDelete {
		if m, _ := caller.Membership(orgID); m.Organization != nil && m.Organization.Type == models.OrgTypePersonal {
			return ErrPersonalOrg
		}
	}
	return nil
}

// CheckTarget 针对目标用户的规则：所有者不能移除或降级自己
func CheckTarget(caller *models.UserWithOrganizations, op Operation, targetUserID string, newPerm models.Permission) error {
	if caller == nil || caller.ID != targetUserID {
		return nil
	}
	switch op {
	case OpRemoveMember:
		return ErrOwnerSelf
	case OpChangeRole:
		if !newPerm.Owner() {
			return ErrOwnerDemote
		}
	}
	return nil
}
