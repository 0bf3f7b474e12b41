package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"quickcap-auth-backend/pkg/database"
	"quickcap-auth-backend/pkg/models"
)

type fixture struct {
	store  *database.LocalDatabase
	mirror *recordingMirror
	users  *UserDirectory
	orgs   *OrgService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := database.NewMemoryDatabase()
	mirror := &recordingMirror{}
	log := zaptest.NewLogger(t)
	return &fixture{
		store:  store,
		mirror: mirror,
		users:  NewUserDirectory(store, mirror, log),
		orgs:   NewOrgService(store, mirror, log),
	}
}

// signup creates a user through the first-login path.
func (f *fixture) signup(t *testing.T, email, name string) *models.User {
	t.Helper()
	u, created, err := f.users.FindOrCreate(context.Background(), &models.Profile{Email: email, Name: name})
	require.NoError(t, err)
	require.True(t, created)
	return u
}

// caller reloads the user with current memberships, as the auth middleware does per request.
func (f *fixture) caller(t *testing.T, u *models.User) *models.UserWithOrganizations {
	t.Helper()
	c, err := f.users.LoadCaller(context.Background(), u.ID)
	require.NoError(t, err)
	return c
}

type recordingMirror struct {
	users []string
	orgs  []string
}

func (m *recordingMirror) MirrorUser(_ context.Context, u *models.User) error {
	m.users = append(m.users, u.ID)
	return nil
}

func (m *recordingMirror) MirrorOrganization(_ context.Context, o *models.Organization, _ *models.Membership) error {
	m.orgs = append(m.orgs, o.ID)
	return nil
}
