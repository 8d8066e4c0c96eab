package rootfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test prepareTarget creates a directory target for a directory source.
func TestPrepareTargetDirectory(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "srcdir")
	require.NoError(t, os.Mkdir(src, 0o755))

	info, err := os.Stat(src)
	require.NoError(t, err)

	dst := filepath.Join(base, "nested", "dstdir")
	require.NoError(t, prepareTarget(dst, info))

	stat, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
}

// Test prepareTarget touches a regular file target, creating parents.
func TestPrepareTargetFile(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "srcfile")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	info, err := os.Stat(src)
	require.NoError(t, err)

	dst := filepath.Join(base, "nested", "dstfile")
	require.NoError(t, prepareTarget(dst, info))

	stat, err := os.Stat(dst)
	require.NoError(t, err)
	assert.False(t, stat.IsDir())
	assert.Equal(t, int64(0), stat.Size())
}

// Test prepareTarget rejects a symlink source, per spec.md §4.4's bind
// mount contract (directory or regular/char/block file only).
func TestPrepareTargetRejectsSymlink(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "link")
	require.NoError(t, os.Symlink("/etc/hostname", src))

	info, err := os.Lstat(src)
	require.NoError(t, err)

	err = prepareTarget(filepath.Join(base, "dst"), info)
	assert.Error(t, err)
}

// Test parentDir.
func TestParentDir(t *testing.T) {
	assert.Equal(t, "/box/dev", parentDir("/box/dev/null"))
	assert.Equal(t, "/", parentDir("/etc"))
}
