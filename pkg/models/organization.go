package models

import (
	"strings"
	"time"
)

// OrgType 个人组织或共享组织
type OrgType string

const (
	OrgTypePersonal     OrgType = "Personal"
	OrgTypeOrganization OrgType = "Organization"
)

// PersonalSuffix 个人组织名称后缀
const PersonalSuffix = "'s Personal"

// Organization 组织（个人或共享）
type Organization struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Image     string     `json:"image" db:"image"`
	Type      OrgType    `json:"type" db:"type"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"timestamp" db:"created_at"`
}

// IsDeleted 是否已软删除
func (o *Organization) IsDeleted() bool {
	return o != nil && o.DeletedAt != nil
}

// Permission 成员在组织内的权限
type Permission string

const (
	PermissionAll    Permission = "ALL"
	PermissionRead   Permission = "READ"
	PermissionUpload Permission = "UPLOAD"
)

// ParsePermission 解析权限字符串；CREATE 视为 UPLOAD 的别名
func ParsePermission(s string) (Permission, bool) {
	switch upper(s) {
	case "ALL":
		return PermissionAll, true
	case "READ":
		return PermissionRead, true
	case "UPLOAD", "CREATE":
		return PermissionUpload, true
	}
	return "", false
}

// Owner 是否为所有者权限
func (p Permission) Owner() bool {
	return p == PermissionAll
}

// Membership 用户与组织的成员关系
type Membership struct {
	ID             string        `json:"id" db:"id"`
	UserID         string        `json:"user_id" db:"user_id"`
	OrganizationID string        `json:"org_id" db:"org_id"`
	Permission     Permission    `json:"is_permission" db:"is_permission"`
	IsOwner        bool          `json:"is_owner" db:"is_owner"`
	CreatedAt      time.Time     `json:"timestamp" db:"created_at"`
	Organization   *Organization `json:"organization,omitempty" db:"-"`
}

// Member 成员关系及其用户信息
type Member struct {
	User       User       `json:"user"`
	IsOwner    bool       `json:"is_owner"`
	Permission Permission `json:"is_permission"`
}

// OrganizationDetail 组织及其成员列表（所有组织接口的返回结构）
type OrganizationDetail struct {
	Organization Organization `json:"organization"`
	Users        []Member     `json:"users"`
}

// Owners 返回所有者成员
func (d *OrganizationDetail) Owners() []Member {
	var owners []Member
	for _, m := range d.Users {
		if m.IsOwner {
			owners = append(owners, m)
		}
	}
	return owners
}

// CreateOrgRequest POST /org/create
type CreateOrgRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateOrgRequest PUT /org/{orgId}
type UpdateOrgRequest struct {
	Name string `json:"name" validate:"required"`
}

// AddUsersToOrgRequest PUT /org/{orgId}/add
type AddUsersToOrgRequest struct {
	UsersEmail []string `json:"usersEmail" validate:"required,min=1,dive,required,email"`
}

// RemoveUserFromOrgRequest PUT /org/{orgId}/remove
type RemoveUserFromOrgRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// UpdatePermissionRequest PUT /org/{orgId}/permission
type UpdatePermissionRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Permission string `json:"permission" validate:"required"`
}

// TransferOwnershipRequest PUT /org/{orgId}/transfer
type TransferOwnershipRequest struct {
	NewOwnerEmail string `json:"newOwnerEmail" validate:"required,email"`
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
