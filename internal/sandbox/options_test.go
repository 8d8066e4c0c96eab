package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Validate rejects a nil Options.
func TestValidateNil(t *testing.T) {
	var opts *Options
	assert.Same(t, InvalidArgument, opts.Validate())
}

// Test Validate rejects an empty command.
func TestValidateEmptyCmd(t *testing.T) {
	opts := &Options{}
	err := opts.Validate()
	require.Error(t, err)

	var sandboxErr *Error
	require.ErrorAs(t, err, &sandboxErr)
	assert.Equal(t, KindConfig, sandboxErr.Kind)
}

// Test Validate requires a rootfs path in FSRootfs mode.
func TestValidateRootfsRequiresPath(t *testing.T) {
	opts := &Options{FSMode: FSRootfs, Cmd: []string{"/bin/true"}}
	assert.Error(t, opts.Validate())

	opts.RootfsPath = "/srv/rootfs"
	assert.NoError(t, opts.Validate())
}

// Test Validate rejects mounts under fs=host.
func TestValidateHostRejectsMounts(t *testing.T) {
	opts := &Options{
		FSMode: FSHost,
		Cmd:    []string{"/bin/true"},
		Mounts: []MountSpec{{Host: "/tmp", Dest: "/tmp", Mode: MountRW}},
	}

	assert.Error(t, opts.Validate())
}

// Test Validate requires absolute mount destinations.
func TestValidateMountDestAbsolute(t *testing.T) {
	opts := &Options{
		FSMode: FSTmpfs,
		Cmd:    []string{"/bin/true"},
		Mounts: []MountSpec{{Host: "/tmp", Dest: "relative", Mode: MountRW}},
	}

	assert.Error(t, opts.Validate())
}

// Test Validate defaults an empty hostname to "microbox".
func TestValidateDefaultHostname(t *testing.T) {
	opts := &Options{FSMode: FSHost, Cmd: []string{"/bin/true"}}
	require.NoError(t, opts.Validate())
	assert.Equal(t, "microbox", opts.Hostname)
}
