package cgroupctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestGroup returns a Group rooted at a temp dir with the cgroupfs
// pseudo-files pre-created, since real cgroupfs files always exist and
// writeFile opens them without O_CREAT.
func newTestGroup(t *testing.T, files ...string) *Group {
	dir := t.TempDir()

	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	return &Group{path: dir}
}

// Test SetCPU writes the "<quota> <period>" format spec.md §4.4/§4.8 calls
// for, with period fixed at 100000.
func TestSetCPUQuota(t *testing.T) {
	g := newTestGroup(t, "cpu.max")

	require.NoError(t, g.SetCPU(1.5))

	data, err := os.ReadFile(filepath.Join(g.path, "cpu.max"))
	require.NoError(t, err)
	assert.Equal(t, "150000 100000", string(data))
}

// Test SetCPU writes nothing when unlimited, per spec.md §8.
func TestSetCPUUnlimited(t *testing.T) {
	g := newTestGroup(t, "cpu.max")

	require.NoError(t, g.SetCPU(0))

	data, err := os.ReadFile(filepath.Join(g.path, "cpu.max"))
	require.NoError(t, err)
	assert.Empty(t, string(data))
}

// Test SetMemory writes memory.max and disables swap.
func TestSetMemoryLimit(t *testing.T) {
	g := newTestGroup(t, "memory.max", "memory.swap.max")

	require.NoError(t, g.SetMemory(512 * 1024 * 1024))

	data, err := os.ReadFile(filepath.Join(g.path, "memory.max"))
	require.NoError(t, err)
	assert.Equal(t, "536870912", string(data))

	swap, err := os.ReadFile(filepath.Join(g.path, "memory.swap.max"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(swap))
}

// Test SetMemory writes neither memory.max nor memory.swap.max when
// unlimited, per spec.md §8.
func TestSetMemoryUnlimited(t *testing.T) {
	g := newTestGroup(t, "memory.max")

	require.NoError(t, g.SetMemory(0))

	data, err := os.ReadFile(filepath.Join(g.path, "memory.max"))
	require.NoError(t, err)
	assert.Empty(t, string(data))

	_, err = os.Stat(filepath.Join(g.path, "memory.swap.max"))
	assert.True(t, os.IsNotExist(err))
}
