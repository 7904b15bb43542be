package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := Generate("broker")
	require.NoError(t, err)
	require.NoError(t, Save(dir, c, false))

	pub, err := LoadPublic(filepath.Join(dir, "broker"))
	require.NoError(t, err)
	require.Equal(t, c.Public, pub.Public)
	require.False(t, pub.HasPrivate())

	priv, err := LoadPrivate(filepath.Join(dir, "broker_private"))
	require.NoError(t, err)
	require.Equal(t, c.Private, priv.Private)
	require.True(t, priv.HasPrivate())
}

func TestSaveRefusesOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	c, err := Generate("broker")
	require.NoError(t, err)
	require.NoError(t, Save(dir, c, false))
	err = Save(dir, c, false)
	require.Error(t, err)
	require.NoError(t, Save(dir, c, true))
}

func TestLoadPrivateRejectsGroupReadable(t *testing.T) {
	dir := t.TempDir()
	c, err := Generate("broker")
	require.NoError(t, err)
	require.NoError(t, Save(dir, c, false))

	path := filepath.Join(dir, "broker_private")
	require.NoError(t, os.Chmod(path, 0640))

	_, err = LoadPrivate(path)
	require.Error(t, err)
}

func TestLoadPrivateRejectsMissingFile(t *testing.T) {
	_, err := LoadPrivate(filepath.Join(t.TempDir(), "nope_private"))
	require.Error(t, err)
}

func TestZAPAuthorizedPeerAccepted(t *testing.T) {
	store := NewAuthStore()
	c, err := Generate("client")
	require.NoError(t, err)
	store.Authorize("client", c.Public)

	auth, err := Enable(store)
	require.NoError(t, err)
	defer auth.Disable()

	reply := auth.Authenticate(Request{Mechanism: MechanismCurve, PublicKey: c.Public})
	require.Equal(t, statusOK, reply.StatusCode)
}

func TestZAPUnauthorizedPeerDenied(t *testing.T) {
	store := NewAuthStore()
	c, err := Generate("stranger")
	require.NoError(t, err)

	auth, err := Enable(store)
	require.NoError(t, err)
	defer auth.Disable()

	reply := auth.Authenticate(Request{Mechanism: MechanismCurve, PublicKey: c.Public})
	require.Equal(t, statusDenied, reply.StatusCode)
}

func TestZAPDoubleEnableFails(t *testing.T) {
	store := NewAuthStore()
	auth, err := Enable(store)
	require.NoError(t, err)
	defer auth.Disable()

	_, err = Enable(store)
	require.Error(t, err)
}

func TestZAPRejectsNonCurveMechanism(t *testing.T) {
	store := NewAuthStore()
	auth, err := Enable(store)
	require.NoError(t, err)
	defer auth.Disable()

	reply := auth.Authenticate(Request{Mechanism: "PLAIN"})
	require.Equal(t, statusDenied, reply.StatusCode)
}
