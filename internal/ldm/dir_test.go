package ldm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirFormatThenLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	devicePath := filepath.Join(root, "drive0")
	mountPoint := filepath.Join(root, "mnt")

	fs := NewDirFS()
	require.NoError(t, fs.Format(ctx, devicePath, mountPoint, "medium-1"))

	lib := NewDirLibrary()
	assert.NoError(t, lib.Load(ctx, devicePath, "medium-1"))
	assert.Error(t, lib.Load(ctx, devicePath, "some-other-medium"))
}

func TestDirLibraryLoadMissingMedium(t *testing.T) {
	ctx := context.Background()
	devicePath := t.TempDir()

	lib := NewDirLibrary()
	assert.Error(t, lib.Load(ctx, devicePath, "medium-1"))
}

func TestDirFSMountUnmountRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	devicePath := filepath.Join(root, "drive0")
	mountPoint := filepath.Join(root, "mnt")
	require.NoError(t, os.MkdirAll(devicePath, 0o755))

	fs := NewDirFS()
	require.NoError(t, fs.Mount(ctx, devicePath, mountPoint))

	mounted, err := fs.MountedAt(ctx, devicePath, mountPoint)
	require.NoError(t, err)
	assert.True(t, mounted)

	require.NoError(t, fs.Unmount(ctx, mountPoint))
	mounted, err = fs.MountedAt(ctx, devicePath, mountPoint)
	require.NoError(t, err)
	assert.False(t, mounted)
}
