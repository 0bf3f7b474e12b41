package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/database"
	"quickcap-auth-backend/pkg/models"
)

func TestFindOrCreateCreatesPersonalOrg(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.signup(t, " Alice@Example.com ", "Alice")
	assert.Equal(t, "alice@example.com", alice.Email)
	assert.Equal(t, models.SubscriptionFree, alice.Subscription)

	caller := f.caller(t, alice)
	require.Len(t, caller.Organizations, 1)
	m := caller.Organizations[0]
	assert.True(t, m.IsOwner)
	assert.Equal(t, models.PermissionAll, m.Permission)
	require.NotNil(t, m.Organization)
	assert.Equal(t, models.OrgTypePersonal, m.Organization.Type)
	assert.Equal(t, "Alice's Personal", m.Organization.Name)

	detail, err := f.orgs.Get(ctx, caller, m.OrganizationID)
	require.NoError(t, err)
	require.Len(t, detail.Users, 1)
	assert.Equal(t, alice.ID, detail.Users[0].User.ID)

	assert.Equal(t, []string{alice.ID}, f.mirror.users)
	assert.Equal(t, []string{m.OrganizationID}, f.mirror.orgs)
}

func TestFindOrCreateReturnsExistingUser(t *testing.T) {
	f := newFixture(t)
	alice := f.signup(t, "alice@example.com", "Alice")

	again, created, err := f.users.FindOrCreate(context.Background(), &models.Profile{Email: "ALICE@example.com", Name: "Other"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, alice.ID, again.ID)

	// 不会再建第二个个人组织
	assert.Len(t, f.caller(t, alice).Organizations, 1)
}

func TestFindOrCreateFallsBackToEmailName(t *testing.T) {
	f := newFixture(t)
	u := f.signup(t, "carol@example.com", "")
	c := f.caller(t, u)
	require.Len(t, c.Organizations, 1)
	assert.Equal(t, "carol's Personal", c.Organizations[0].Organization.Name)
}

func TestFindOrCreateRejectsEmptyEmail(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.users.FindOrCreate(context.Background(), &models.Profile{Email: "  "})
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))
}

func TestUpdateSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.signup(t, "alice@example.com", "Alice")

	u, err := f.users.UpdateSubscription(ctx, alice.ID, "premium")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPremium, u.Subscription)

	_, err = f.users.UpdateSubscription(ctx, alice.ID, "GOLD")
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))

	_, err = f.users.UpdateSubscription(ctx, "missing", "FREE")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.signup(t, "alice@example.com", "Alice")

	u, err := f.users.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	_, err = f.users.FindByEmail(ctx, "nobody@example.com")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	_, err = f.users.GetByID(ctx, "")
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))

	_, err = f.users.LoadCaller(ctx, "missing")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

// failingOrgStore 在事务内拒绝创建组织
type failingOrgStore struct {
	database.Store
}

func (s failingOrgStore) CreateOrganization(context.Context, *models.Organization) error {
	return errors.New("disk full")
}

func (s failingOrgStore) WithTx(ctx context.Context, fn func(database.Store) error) error {
	return s.Store.WithTx(ctx, func(tx database.Store) error {
		return fn(failingOrgStore{tx})
	})
}

func TestFindOrCreateRollsBackWithoutPersonalOrg(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryDatabase()
	users := NewUserDirectory(failingOrgStore{store}, &recordingMirror{}, zaptest.NewLogger(t))

	_, created, err := users.FindOrCreate(ctx, &models.Profile{Email: "dave@example.com", Name: "Dave"})
	require.Error(t, err)
	assert.False(t, created)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))

	_, err = store.GetUserByEmail(ctx, "dave@example.com")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
