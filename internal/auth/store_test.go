package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/access"
)

type stubAuthenticator struct {
	result    LoginResult
	err       error
	logoutErr error
	calls     atomic.Int32
	logouts   []string
	gate      chan struct{}
	entered   chan struct{}
	mu        sync.Mutex
}

func (s *stubAuthenticator) Login(ctx context.Context, email, password string) (LoginResult, error) {
	s.calls.Add(1)
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return LoginResult{}, s.err
	}
	return s.result, nil
}

func (s *stubAuthenticator) Logout(ctx context.Context, token string) error {
	s.mu.Lock()
	s.logouts = append(s.logouts, token)
	s.mu.Unlock()
	return s.logoutErr
}

type failingStorage struct{}

func (failingStorage) Get(string) (string, bool, error) { return "", false, errors.New("storage unavailable") }
func (failingStorage) Set(string, string) error         { return errors.New("storage unavailable") }
func (failingStorage) Delete(string) error              { return errors.New("storage unavailable") }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func salesUser() access.Identity {
	return access.Identity{
		ID:             "12",
		Username:       "sari",
		Email:          "sari@odyssey.local",
		Role:           access.RoleDashboardUser,
		AllowedModules: []string{"sales", "quotation"},
		Branch:         "Jakarta",
	}
}

func TestLoginLogoutRoundTrip(t *testing.T) {
	client := &stubAuthenticator{result: LoginResult{Identity: salesUser(), Token: "tok-1"}}
	storage := NewMemoryStorage()
	store := NewStore(client, storage, quietLogger())

	identity, err := store.Login(context.Background(), "sari@odyssey.local", "rahasia123")
	require.NoError(t, err)
	assert.Equal(t, "sari", identity.Username)

	snap := store.Snapshot()
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "tok-1", snap.Token)
	assert.True(t, store.HasModuleAccess("sales"))
	assert.False(t, store.IsAdmin())

	token, ok, _ := storage.Get(KeyToken)
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)
	_, ok, _ = storage.Get(KeyUserData)
	require.True(t, ok)

	store.Logout(context.Background())
	snap = store.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Empty(t, snap.Token)
	assert.Equal(t, []string{"tok-1"}, client.logouts)

	_, ok, _ = storage.Get(KeyToken)
	assert.False(t, ok)
	_, ok, _ = storage.Get(KeyUserData)
	assert.False(t, ok)
}

func TestLoginFailureLeavesSessionUnchanged(t *testing.T) {
	client := &stubAuthenticator{result: LoginResult{Identity: salesUser(), Token: "tok-1"}}
	store := NewStore(client, NewMemoryStorage(), quietLogger())
	_, err := store.Login(context.Background(), "sari@odyssey.local", "rahasia123")
	require.NoError(t, err)
	before := store.Snapshot()

	client.err = authenticationFailure("Invalid password")
	_, err = store.Login(context.Background(), "sari@odyssey.local", "wrong")
	require.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, "Invalid password", UserMessage(err))
	assert.Equal(t, before, store.Snapshot())
}

func TestLogoutSucceedsWhenRemoteFails(t *testing.T) {
	client := &stubAuthenticator{result: LoginResult{Identity: salesUser(), Token: "tok-1"}, logoutErr: errors.New("503")}
	store := NewStore(client, NewMemoryStorage(), quietLogger())
	_, err := store.Login(context.Background(), "sari@odyssey.local", "rahasia123")
	require.NoError(t, err)

	store.Logout(context.Background())
	assert.False(t, store.Snapshot().Authenticated())
}

func TestLogoutWithoutTokenSkipsRemote(t *testing.T) {
	client := &stubAuthenticator{}
	store := NewStore(client, NewMemoryStorage(), quietLogger())
	store.Logout(context.Background())
	assert.Empty(t, client.logouts)
}

func TestRestoreIsIdempotent(t *testing.T) {
	storage := NewMemoryStorage()
	seed := NewStore(&stubAuthenticator{result: LoginResult{Identity: salesUser(), Token: "tok-9"}}, storage, quietLogger())
	_, err := seed.Login(context.Background(), "sari@odyssey.local", "rahasia123")
	require.NoError(t, err)

	store := NewStore(&stubAuthenticator{}, storage, quietLogger())
	require.True(t, store.Loading())
	store.Restore()
	first := store.Snapshot()
	store.Restore()
	second := store.Snapshot()

	assert.False(t, first.Loading)
	require.NotNil(t, first.Identity)
	assert.Equal(t, "tok-9", first.Token)
	assert.Equal(t, first, second)
}

func TestRestoreWithoutPersistedState(t *testing.T) {
	store := NewStore(&stubAuthenticator{}, NewMemoryStorage(), quietLogger())
	store.Restore()
	snap := store.Snapshot()
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Identity)
	assert.False(t, store.HasModuleAccess("sales"))
}

func TestRestoreRequiresBothKeys(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(KeyToken, "tok-only"))
	store := NewStore(&stubAuthenticator{}, storage, quietLogger())
	store.Restore()
	assert.False(t, store.Snapshot().Authenticated())
}

func TestRestoreTreatsCorruptDataAsEmpty(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(KeyToken, "tok"))
	require.NoError(t, storage.Set(KeyUserData, "{not json"))
	store := NewStore(&stubAuthenticator{}, storage, quietLogger())
	store.Restore()
	snap := store.Snapshot()
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Identity)
}

func TestStorageFailuresAreAbsorbed(t *testing.T) {
	client := &stubAuthenticator{result: LoginResult{Identity: salesUser(), Token: "tok-1"}}
	store := NewStore(client, failingStorage{}, quietLogger())
	store.Restore()
	assert.False(t, store.Loading())

	_, err := store.Login(context.Background(), "sari@odyssey.local", "rahasia123")
	require.NoError(t, err)
	assert.True(t, store.Snapshot().Authenticated())

	store.Logout(context.Background())
	assert.False(t, store.Snapshot().Authenticated())
}

func TestLoginDropsUnknownModules(t *testing.T) {
	user := salesUser()
	user.AllowedModules = append(user.AllowedModules, "nonexistent-module", "user-management")
	store := NewStore(&stubAuthenticator{result: LoginResult{Identity: user, Token: "t"}}, NewMemoryStorage(), quietLogger())
	identity, err := store.Login(context.Background(), "sari@odyssey.local", "rahasia123")
	require.NoError(t, err)
	assert.Equal(t, []string{"sales", "quotation"}, identity.AllowedModules)
	assert.False(t, store.HasModuleAccess("nonexistent-module"))
}

func TestListenersDriveReconciliation(t *testing.T) {
	storage := NewMemoryStorage()
	client := &stubAuthenticator{result: LoginResult{Identity: salesUser(), Token: "tok-1"}}
	store := NewStore(client, storage, quietLogger())
	nav := access.NewNavigator(access.InitialState(), nil)
	store.Subscribe(nav.IdentityChanged)

	_, err := store.Login(context.Background(), "sari@odyssey.local", "rahasia123")
	require.NoError(t, err)
	assert.Equal(t, "sales", nav.State().ActiveTab)
	require.True(t, nav.RequestActivate("quotation", "drafts"))

	shrunk := salesUser()
	shrunk.AllowedModules = []string{"sales"}
	store.Refresh(shrunk)
	assert.Equal(t, "sales", nav.State().ActiveTab)
	assert.Empty(t, nav.State().ActiveSubPage)

	store.Logout(context.Background())
	assert.False(t, nav.State().Authenticated())
}

func TestLoginAdmitsRoleAndKeysExactly(t *testing.T) {
	user := salesUser()
	user.Role = " admin "
	user.AllowedModules = []string{"SALES", " Inventory"}
	store := NewStore(&stubAuthenticator{result: LoginResult{Identity: user, Token: "t"}}, NewMemoryStorage(), quietLogger())

	identity, err := store.Login(context.Background(), "sari@odyssey.local", "rahasia123")
	require.NoError(t, err)
	assert.Empty(t, identity.AllowedModules)
	assert.False(t, store.HasModuleAccess("sales"))
	assert.False(t, store.HasModuleAccess("inventory"))
	assert.False(t, store.IsAdmin())
	assert.False(t, store.Policy().IsTabAccessible("user-management"))
}
