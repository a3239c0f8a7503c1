package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileBackend(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "registry-state-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	backend, err := NewFileBackend(filepath.Join(tempDir, "nested"), discardLogger())
	require.NoError(t, err)
	assert.True(t, backend.Available(context.Background()))
	assert.Equal(t, "file://"+filepath.Join(tempDir, "nested"), backend.LocationURI())

	_, err = backend.Load(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrStateNotFound)

	id, err := backend.Save(context.Background(), []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID([]byte("v1")), id)

	_, err = backend.Save(context.Background(), []byte("v2"))
	require.NoError(t, err)

	data, err := backend.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	entries, err := os.ReadDir(filepath.Join(tempDir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files should be left behind")
	assert.Equal(t, StateObjectName, entries[0].Name())
}

func TestMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend("test")
	ctx := context.Background()

	_, err := backend.Load(ctx)
	assert.ErrorIs(t, err, interfaces.ErrStateNotFound)

	input := []byte("state")
	_, err = backend.Save(ctx, input)
	require.NoError(t, err)
	input[0] = 'X'

	data, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), data)

	backend.SetAvailable(false)
	assert.False(t, backend.Available(ctx))
	_, err = backend.Save(ctx, []byte("other"))
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	_, err = backend.Load(ctx)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	backend.SetAvailable(true)
	data, err = backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), data)
}

func TestEncryptedBackend(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend("encrypted")
	key := cryptoutils.DeriveStateKey([]byte("passphrase"), "test")
	backend := NewEncryptedBackend(inner, key, discardLogger())

	_, err := backend.Load(ctx)
	assert.ErrorIs(t, err, interfaces.ErrStateNotFound)

	_, err = backend.Save(ctx, []byte("plain state"))
	require.NoError(t, err)

	stored, err := inner.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, string(stored), "plain state")

	data, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain state"), data)

	wrongKey := NewEncryptedBackend(inner, cryptoutils.DeriveStateKey([]byte("other"), "test"), discardLogger())
	_, err = wrongKey.Load(ctx)
	assert.ErrorIs(t, err, cryptoutils.ErrStateDecryption)
}

func TestStorageBackendFactory(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "registry-factory-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	factory := NewStorageBackendFactory(discardLogger())

	mustLocation := func(uri string) interfaces.StorageBackendLocation {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		require.NoError(t, err)
		return loc
	}

	fileBackend, err := factory.StateBackendFor(mustLocation("file://" + tempDir))
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, fileBackend)

	s3Backend, err := factory.StateBackendFor(mustLocation("s3://key:secret@bucket/some/prefix?region=eu-west-1&endpoint=http://localhost:9000&path_style=true"))
	require.NoError(t, err)
	require.IsType(t, &S3Backend{}, s3Backend)
	assert.Equal(t, "some/prefix/"+StateObjectName, s3Backend.(*S3Backend).key)
	assert.NotContains(t, s3Backend.LocationURI(), "secret")

	ipfsBackend, err := factory.StateBackendFor(mustLocation("ipfs://127.0.0.1:5001/registry?timeout=5s"))
	require.NoError(t, err)
	require.IsType(t, &IPFSBackend{}, ipfsBackend)
	assert.Equal(t, "/registry/"+StateObjectName, ipfsBackend.(*IPFSBackend).mfsPath)

	_, err = factory.StateBackendFor(mustLocation("ipfs://127.0.0.1:5001/?timeout=soon"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	vaultBackend, err := factory.StateBackendFor(mustLocation("vault://vault.local:8200/secret/registry?tls=false"))
	require.NoError(t, err)
	require.IsType(t, &VaultBackend{}, vaultBackend)
	assert.Equal(t, "secret/data/registry/"+StateObjectName, vaultBackend.(*VaultBackend).secretPath())

	_, err = factory.StateBackendFor(mustLocation("vault://vault.local:8200"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	// Memory backends are shared by name
	m1, err := factory.StateBackendFor(mustLocation("memory://shared"))
	require.NoError(t, err)
	m2, err := factory.StateBackendFor(mustLocation("memory://shared"))
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	multi, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
		mustLocation("memory://a"),
		mustLocation("memory://b"),
	})
	require.NoError(t, err)
	assert.IsType(t, &MultiStorageBackend{}, multi)

	single, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{mustLocation("memory://a")})
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, single)

	_, err = factory.CreateMultiBackend(nil)
	assert.Error(t, err)

	_, err = interfaces.NewStorageBackendLocation("ftp://example.com")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}
