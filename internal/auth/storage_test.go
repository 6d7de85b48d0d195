package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/access"
)

func TestIdentityEnvelopeRoundTrip(t *testing.T) {
	raw, err := encodeIdentity(salesUser())
	require.NoError(t, err)
	assert.Contains(t, raw, `"version":1`)

	identity, err := decodeIdentity(raw)
	require.NoError(t, err)
	assert.Equal(t, salesUser(), identity)
}

func TestDecodeLegacyIdentity(t *testing.T) {
	identity, err := decodeIdentity(`{"id":5,"username":"budi","role":"dashboard_user","allowedModules":["inventory"]}`)
	require.NoError(t, err)
	assert.Equal(t, access.UserID("5"), identity.ID)
	assert.Equal(t, []string{"inventory"}, identity.AllowedModules)
}

func TestDecodeRejectsFutureVersion(t *testing.T) {
	_, err := decodeIdentity(`{"version":9,"identity":{"id":"1","role":"admin"}}`)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeRejectsEnvelopeWithoutIdentity(t *testing.T) {
	_, err := decodeIdentity(`{"version":1}`)
	require.ErrorIs(t, err, access.ErrInvalidIdentity)
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odyssey", "session.json")
	fs := NewFileStorage(path)

	_, ok, err := fs.Get(KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fs.Set(KeyToken, "tok"))
	require.NoError(t, fs.Set(KeyUserData, "{}"))

	again := NewFileStorage(path)
	v, ok, err := again.Get(KeyToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, again.Delete(KeyToken))
	_, ok, err = fs.Get(KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStorageCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	fs := NewFileStorage(path)

	_, _, err := fs.Get(KeyToken)
	require.Error(t, err)

	store := NewStore(&stubAuthenticator{}, fs, quietLogger())
	store.Restore()
	assert.False(t, store.Loading())
	assert.False(t, store.Snapshot().Authenticated())

	require.NoError(t, fs.Set(KeyToken, "fresh"))
	v, ok, err := fs.Get(KeyToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}
