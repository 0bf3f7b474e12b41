package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/models"
)

func caller() *models.UserWithOrganizations {
	personal := &models.Organization{ID: "personal", Type: models.OrgTypePersonal}
	shared := &models.Organization{ID: "shared", Type: models.OrgTypeOrganization}
	return &models.UserWithOrganizations{
		User: models.User{ID: "u1"},
		Organizations: []models.Membership{
			{OrganizationID: "personal", Permission: models.PermissionAll, IsOwner: true, Organization: personal},
			{OrganizationID: "shared", Permission: models.PermissionAll, IsOwner: true, Organization: shared},
			{OrganizationID: "joined", Permission: models.PermissionRead},
		},
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		orgID string
		op    Operation
		want  error
	}{
		{"member can view", "joined", OpView, nil},
		{"stranger can not view", "other", OpView, ErrNotMember},
		{"anyone can create", "", OpCreate, nil},
		{"owner renames", "shared", OpRename, nil},
		{"member can not rename", "joined", OpRename, ErrNotOwner},
		{"stranger can not add", "other", OpAddMember, ErrNotOwner},
		{"member can not change role", "joined", OpChangeRole, ErrNotOwner},
		{"owner deletes shared org", "shared", OpDelete, nil},
		{"personal org is not deletable", "personal", OpDelete, ErrPersonalOrg},
		{"member leaves", "joined", OpLeave, nil},
		{"owner can not leave", "shared", OpLeave, ErrOwnerLeave},
		{"stranger can not leave", "other", OpLeave, ErrNotMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(caller(), tt.orgID, tt.op)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckWithoutCaller(t *testing.T) {
	err := Check(nil, "shared", OpView)
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))
}

func TestCheckTarget(t *testing.T) {
	c := caller()
	assert.ErrorIs(t, CheckTarget(c, OpRemoveMember, "u1", ""), ErrOwnerSelf)
	assert.ErrorIs(t, CheckTarget(c, OpChangeRole, "u1", models.PermissionRead), ErrOwnerDemote)
	assert.NoError(t, CheckTarget(c, OpChangeRole, "u1", models.PermissionAll))
	assert.NoError(t, CheckTarget(c, OpRemoveMember, "u2", ""))
}

func TestOperationNames(t *testing.T) {
	assert.Equal(t, "change-role", OpChangeRole.String())
	assert.Equal(t, "unknown", Operation(99).String())
	assert.True(t, OpTransfer.RequiresOwner())
	assert.False(t, OpLeave.RequiresOwner())
}

func TestMembershipPredicates(t *testing.T) {
	c := caller()
	assert.True(t, IsMember(c, "joined"))
	assert.False(t, IsOwner(c, "joined"))
	assert.True(t, IsOwner(c, "shared"))
	assert.False(t, IsMember(c, "other"))
	assert.False(t, IsOwner(c, "other"))
	assert.False(t, IsOwner(nil, "shared"))
}
