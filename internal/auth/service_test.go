package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/pkg/apperr"
)

type memStore struct {
	users map[string]*models.User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*models.User)}
}

func (m *memStore) InsertUser(u *models.User) error {
	cp := *u
	m.users[u.Username] = &cp
	return nil
}

func (m *memStore) GetUser(username string) (*models.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, sqlite.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) ListUsers() ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memStore) CountUsers() (int, error) {
	return len(m.users), nil
}

func (m *memStore) CountActiveAdmins() (int, error) {
	n := 0
	for _, u := range m.users {
		if u.IsAdmin() && u.Active {
			n++
		}
	}
	return n, nil
}

func (m *memStore) SetUserActive(username string, active bool) error {
	u, ok := m.users[username]
	if !ok {
		return sqlite.ErrNotFound
	}
	u.Active = active
	return nil
}

func (m *memStore) TouchLastLogin(username string, at time.Time) error {
	u, ok := m.users[username]
	if !ok {
		return sqlite.ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

func (m *memStore) DeleteUser(username string) error {
	if _, ok := m.users[username]; !ok {
		return sqlite.ErrNotFound
	}
	delete(m.users, username)
	return nil
}

func newTestService(store Store) *Service {
	tokens := NewTokenIssuer("test-secret", time.Hour)
	// minimum bcrypt cost keeps the tests fast
	return NewService(store, tokens, 4)
}

func TestFirstRegisteredUserIsAdmin(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	alice, err := svc.Register("alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, alice.Role)
	assert.True(t, alice.Active)

	bob, err := svc.Register("bob", "pw2")
	require.NoError(t, err)
	assert.Equal(t, models.RoleQAUser, bob.Role)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Register("alice", "pw1")
	require.NoError(t, err)

	_, err = svc.Register("alice", "other")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "already exists")
}

func TestRegisterRejectsEmptyFields(t *testing.T) {
	svc := newTestService(newMemStore())

	for _, pair := range [][2]string{{"", "pw"}, {"alice", ""}, {"", ""}} {
		_, err := svc.Register(pair[0], pair[1])
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	}
}

func TestLoginFlow(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Register("alice", "pw1")
	require.NoError(t, err)

	token, user, err := svc.Login("alice", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NotNil(t, user.LastLogin)

	_, _, err = svc.Login("alice", "wrong")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, _, err = svc.Login("nobody", "pw")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Register("alice", "pw1")
	require.NoError(t, err)
	_, err = svc.Register("bob", "pw2")
	require.NoError(t, err)

	require.NoError(t, svc.SetActive("alice", "bob", false))

	_, _, err = svc.Login("bob", "pw2")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestLastAdminCannotBeDeactivated(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Register("alice", "pw1")
	require.NoError(t, err)

	err = svc.SetActive("alice", "alice", false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
	assert.Contains(t, err.Error(), "active admin must remain")

	// table unchanged
	u, err := store.GetUser("alice")
	require.NoError(t, err)
	assert.True(t, u.Active)
}

func TestLastAdminCannotBeDeleted(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Register("alice", "pw1")
	require.NoError(t, err)
	_, err = svc.Register("bob", "pw2")
	require.NoError(t, err)

	err = svc.Delete("bob", "alice")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	n, _ := store.CountUsers()
	assert.Equal(t, 2, n)
}

func TestCannotDeleteSelf(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Register("alice", "pw1")
	require.NoError(t, err)

	err = svc.Delete("alice", "alice")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestDeleteNonLastAdmin(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Register("alice", "pw1")
	require.NoError(t, err)
	_, err = svc.Register("bob", "pw2")
	require.NoError(t, err)

	require.NoError(t, svc.Delete("alice", "bob"))

	_, err = store.GetUser("bob")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestTokenRoundtrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, err := issuer.Issue("alice", models.RoleAdmin)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", time.Hour).Issue("alice", models.RoleQAUser)
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", time.Hour).Verify(token)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestTokenRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", -time.Minute)

	token, err := issuer.Issue("alice", models.RoleQAUser)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}
