package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickcap-auth-backend/pkg/models"
)

// runStoreSuite exercises the Store contract; every backend runs it.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	seed := func(t *testing.T, st Store) (*models.User, *models.User, *models.Organization) {
		t.Helper()
		alice := &models.User{Email: "alice@example.com", Name: "Alice", Subscription: models.SubscriptionFree, Locale: "en"}
		bob := &models.User{Email: "bob@example.com", Name: "Bob", Subscription: models.SubscriptionFree, Locale: "en"}
		require.NoError(t, st.CreateUser(ctx, alice))
		require.NoError(t, st.CreateUser(ctx, bob))
		org := &models.Organization{Name: "JS Club", Type: models.OrgTypeOrganization}
		require.NoError(t, st.CreateOrganization(ctx, org))
		created, err := st.AddMembership(ctx, &models.Membership{
			UserID: alice.ID, OrganizationID: org.ID, Permission: models.PermissionAll, IsOwner: true,
		})
		require.NoError(t, err)
		require.True(t, created)
		return alice, bob, org
	}

	t.Run("users", func(t *testing.T) {
		st := newStore(t)
		alice, _, _ := seed(t, st)
		assert.NotEmpty(t, alice.ID)
		assert.False(t, alice.CreatedAt.IsZero())

		got, err := st.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, "Alice", got.Name)

		_, err = st.GetUserByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		dup := &models.User{Email: "alice@example.com", Subscription: models.SubscriptionFree}
		assert.ErrorIs(t, st.CreateUser(ctx, dup), ErrAlreadyExists)

		users, err := st.ListUsersByEmails(ctx, []string{"bob@example.com", "nobody@example.com", "alice@example.com"})
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice@example.com", users[0].Email)
		assert.Equal(t, "bob@example.com", users[1].Email)

		updated, err := st.UpdateUserSubscription(ctx, alice.ID, models.SubscriptionPremium)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionPremium, updated.Subscription)

		_, err = st.UpdateUserSubscription(ctx, "missing", models.SubscriptionPremium)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("organizations", func(t *testing.T) {
		st := newStore(t)
		_, _, org := seed(t, st)

		got, err := st.GetOrganization(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, "JS Club", got.Name)
		assert.Equal(t, models.OrgTypeOrganization, got.Type)
		assert.False(t, got.IsDeleted())

		renamed, err := st.UpdateOrganizationName(ctx, org.ID, "JS Society")
		require.NoError(t, err)
		assert.Equal(t, "JS Society", renamed.Name)

		require.NoError(t, st.SoftDeleteOrganization(ctx, org.ID, time.Now()))
		_, err = st.GetOrganization(ctx, org.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = st.UpdateOrganizationName(ctx, org.ID, "again")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, st.SoftDeleteOrganization(ctx, org.ID, time.Now()), ErrNotFound)
	})

	t.Run("memberships", func(t *testing.T) {
		st := newStore(t)
		alice, bob, org := seed(t, st)

		created, err := st.AddMembership(ctx, &models.Membership{UserID: bob.ID, OrganizationID: org.ID, Permission: models.PermissionRead})
		require.NoError(t, err)
		assert.True(t, created)

		// 重复添加不报错也不新增
		created, err = st.AddMembership(ctx, &models.Membership{UserID: bob.ID, OrganizationID: org.ID, Permission: models.PermissionUpload})
		require.NoError(t, err)
		assert.False(t, created)

		m, err := st.GetMembership(ctx, org.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PermissionRead, m.Permission)
		assert.False(t, m.IsOwner)

		members, err := st.ListOrganizationMembers(ctx, org.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, alice.ID, members[0].User.ID)
		assert.True(t, members[0].IsOwner)
		assert.Equal(t, "bob@example.com", members[1].User.Email)

		require.NoError(t, st.UpdateMembershipRole(ctx, org.ID, bob.ID, models.PermissionUpload, false))
		m, err = st.GetMembership(ctx, org.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PermissionUpload, m.Permission)
		assert.ErrorIs(t, st.UpdateMembershipRole(ctx, org.ID, "missing", models.PermissionRead, false), ErrNotFound)

		mine, err := st.ListUserMemberships(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		require.NotNil(t, mine[0].Organization)
		assert.Equal(t, "JS Club", mine[0].Organization.Name)

		n, err := st.DeleteMemberships(ctx, org.ID, []string{bob.ID, "missing"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		_, err = st.GetMembership(ctx, org.ID, bob.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		// 软删除的组织不出现在用户的组织列表中
		require.NoError(t, st.SoftDeleteOrganization(ctx, org.ID, time.Now()))
		mine, err = st.ListUserMemberships(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, mine)
	})

	t.Run("transactions", func(t *testing.T) {
		st := newStore(t)
		alice, bob, org := seed(t, st)
		boom := errors.New("boom")

		err := st.WithTx(ctx, func(tx Store) error {
			if _, err := tx.AddMembership(ctx, &models.Membership{UserID: bob.ID, OrganizationID: org.ID, Permission: models.PermissionRead}); err != nil {
				return err
			}
			if err := tx.UpdateMembershipRole(ctx, org.ID, alice.ID, models.PermissionUpload, false); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = st.GetMembership(ctx, org.ID, bob.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		m, err := st.GetMembership(ctx, org.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, m.IsOwner)

		err = st.WithTx(ctx, func(tx Store) error {
			return tx.WithTx(ctx, func(inner Store) error {
				_, err := inner.AddMembership(ctx, &models.Membership{UserID: bob.ID, OrganizationID: org.ID, Permission: models.PermissionRead})
				return err
			})
		})
		require.NoError(t, err)
		_, err = st.GetMembership(ctx, org.ID, bob.ID)
		assert.NoError(t, err)
	})

	t.Run("lock organization", func(t *testing.T) {
		st := newStore(t)
		_, _, org := seed(t, st)

		require.NoError(t, st.WithTx(ctx, func(tx Store) error {
			return tx.LockOrganization(ctx, org.ID)
		}))
		err := st.WithTx(ctx, func(tx Store) error {
			return tx.LockOrganization(ctx, "missing")
		})
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, st.SoftDeleteOrganization(ctx, org.ID, time.Now()))
		err = st.WithTx(ctx, func(tx Store) error {
			return tx.LockOrganization(ctx, org.ID)
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("health", func(t *testing.T) {
		st := newStore(t)
		assert.NoError(t, st.HealthCheck(ctx))
	})
}
