package sandbox

import (
	"fmt"
	"path/filepath"

	"github.com/HQarroum/microbox/shared/logger"
)

// FSMode selects how the sandbox's root filesystem is constructed.
type FSMode int

const (
	// FSHost gives the sandbox the host's filesystem unchanged.
	FSHost FSMode = iota
	// FSTmpfs builds an ephemeral, empty root backed by tmpfs.
	FSTmpfs
	// FSRootfs layers an overlayfs over a user-supplied lower directory.
	FSRootfs
)

func (m FSMode) String() string {
	switch m {
	case FSHost:
		return "host"
	case FSTmpfs:
		return "tmpfs"
	case FSRootfs:
		return "rootfs"
	default:
		return "unknown"
	}
}

// NetMode selects the sandbox's network topology.
type NetMode int

const (
	// NetNone isolates the sandbox into its own netns with no interfaces.
	NetNone NetMode = iota
	// NetHost shares the host's network namespace.
	NetHost
	// NetPrivate creates a netns with no further interface configuration.
	NetPrivate
	// NetBridge attaches the sandbox to a host bridge via a veth pair.
	NetBridge
)

func (m NetMode) String() string {
	switch m {
	case NetNone:
		return "none"
	case NetHost:
		return "host"
	case NetPrivate:
		return "private"
	case NetBridge:
		return "bridge"
	default:
		return "unknown"
	}
}

// MountMode is the read/write mode of a bind mount.
type MountMode int

const (
	// MountRW bind-mounts the source read-write.
	MountRW MountMode = iota
	// MountRO bind-mounts the source and remounts it read-only.
	MountRO
)

func (m MountMode) String() string {
	if m == MountRO {
		return "ro"
	}

	return "rw"
}

// MountSpec describes one user-requested bind mount.
type MountSpec struct {
	Host string
	Dest string
	Mode MountMode
}

// Options is the input to Spawn. Every field is resolved by the CLI (or a
// caller embedding this package) before Spawn is ever invoked; the only
// change Spawn makes to it is Validate filling in an empty Hostname.
type Options struct {
	FSMode     FSMode
	RootfsPath string

	NetMode NetMode

	Hostname string

	CPUs   float64
	Memory uint64

	Mounts    []MountSpec
	MountProc bool
	MountDev  bool

	// TmpfsSize, DevSize, and ShmSize override the Filesystem Builder's
	// built-in tmpfs size options; empty means use its default.
	TmpfsSize string
	DevSize   string
	ShmSize   string

	Env map[string]string

	SyscallsAllow []string
	SyscallsDeny  []string

	// DropCaps enables the post-seccomp capability drop. The CLI's
	// --drop-caps flag defaults to true; the original C implementation left this step commented out, this
	// reimplementation enables it per the Open Question in spec.md §9.
	DropCaps bool

	Cmd []string
}

// Validate enforces the cross-option invariants from spec.md §3 and returns
// a *Error with KindConfig on violation. It logs (but does not fail on) the
// documented warning case, and sets an empty Hostname to "microbox".
func (o *Options) Validate() error {
	if o == nil {
		return InvalidArgument
	}

	if len(o.Cmd) == 0 {
		return Errf(KindConfig, "validate", fmt.Errorf("cmd must be non-empty"))
	}

	if o.FSMode == FSRootfs && o.RootfsPath == "" {
		return Errf(KindConfig, "validate", fmt.Errorf("fs=rootfs requires a non-empty rootfs path"))
	}

	if o.FSMode == FSHost && len(o.Mounts) > 0 {
		return Errf(KindConfig, "validate", fmt.Errorf("fs=host does not support --mount-ro/--mount-rw"))
	}

	if o.FSMode == FSHost && o.NetMode == NetPrivate {
		logger.Warn("fs=host with net=private: the sandbox shares the host filesystem but gets an isolated network namespace", logger.Ctx{"fs": o.FSMode.String(), "net": o.NetMode.String()})
	}

	for _, m := range o.Mounts {
		if !filepath.IsAbs(m.Dest) {
			return Errf(KindConfig, "validate", fmt.Errorf("mount destination %q must be absolute", m.Dest))
		}
	}

	if o.Hostname == "" {
		o.Hostname = "microbox"
	}

	return nil
}

// Dump writes one key=value line per resolved field to the given writer,
// the non-normative parameter dump spec.md §7 calls for before spawn.
func (o *Options) Dump(write func(format string, args ...any)) {
	write("fs_mode=%s\n", o.FSMode)
	if o.FSMode == FSRootfs {
		write("rootfs_path=%s\n", o.RootfsPath)
	}

	write("net_mode=%s\n", o.NetMode)
	write("hostname=%s\n", o.Hostname)
	write("cpus=%g\n", o.CPUs)
	write("memory=%d\n", o.Memory)
	write("mount_proc=%t\n", o.MountProc)
	write("mount_dev=%t\n", o.MountDev)
	write("drop_caps=%t\n", o.DropCaps)

	if o.TmpfsSize != "" {
		write("tmpfs_size=%s\n", o.TmpfsSize)
	}
	if o.DevSize != "" {
		write("dev_size=%s\n", o.DevSize)
	}
	if o.ShmSize != "" {
		write("shm_size=%s\n", o.ShmSize)
	}

	for _, m := range o.Mounts {
		write("mount=%s:%s:%s\n", m.Host, m.Dest, m.Mode)
	}

	for k, v := range o.Env {
		write("env=%s=%s\n", k, v)
	}

	for _, s := range o.SyscallsDeny {
		write("deny_syscall=%s\n", s)
	}

	for _, s := range o.SyscallsAllow {
		write("allow_syscall=%s\n", s)
	}

	write("cmd=%v\n", o.Cmd)
}
