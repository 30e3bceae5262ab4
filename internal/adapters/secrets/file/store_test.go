package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSecret(t *testing.T, root, key, value string, mode os.FileMode) {
	t.Helper()

	path := filepath.Join(root, key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(value), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func TestStoreLookupTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSecret(t, root, "khaos/dao-rpc", "rpc-token\n", 0o600)

	value, err := NewStore(root).Lookup(context.Background(), "khaos/dao-rpc")
	require.NoError(t, err)
	assert.Equal(t, "rpc-token", value)
}

func TestStoreLookupMissing(t *testing.T) {
	t.Parallel()

	_, err := NewStore(t.TempDir()).Lookup(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreLookupRejectsWideMode(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSecret(t, root, "token", "x", 0o644)

	_, err := NewStore(root).Lookup(context.Background(), "token")
	assert.ErrorContains(t, err, "readable by others")
}

func TestStoreLookupRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	for _, key := range []string{"", "  ", "../outside", "/etc/passwd", "."} {
		_, err := store.Lookup(context.Background(), key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestStoreLookupHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore(t.TempDir()).Lookup(ctx, "token")
	assert.ErrorIs(t, err, context.Canceled)
}
