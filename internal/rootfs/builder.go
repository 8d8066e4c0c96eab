package rootfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mode selects which of the three root filesystem layouts to build.
type Mode int

const (
	ModeHost Mode = iota
	ModeTmpfs
	ModeRootfs
)

// BindMount describes one user-requested bind mount, relative to the
// sandbox root being built.
type BindMount struct {
	Host     string
	Dest     string
	ReadOnly bool
}

// Spec is the Filesystem Builder's input: the chosen mode, the rootfs
// directory (Rootfs mode only), and the set of optional mounts.
//
// TmpfsSize, DevSize, and ShmSize override the built-in tmpfs size
// options ("512m", "2m", "64m" respectively); empty means use the
// built-in default.
type Spec struct {
	Mode       Mode
	RootfsPath string
	Mounts     []BindMount
	MountProc  bool
	MountDev   bool
	TmpfsSize  string
	DevSize    string
	ShmSize    string
}

// Build assembles the sandbox root filesystem per spec.md §4.4 and pivots
// into it. Host mode is a no-op: the sandbox keeps the host's mount
// namespace and filesystem. The other modes expect the caller to have
// already made the root private via MakeRootPrivate.
func Build(spec Spec) error {
	switch spec.Mode {
	case ModeHost:
		return nil

	case ModeTmpfs:
		return buildLayered(spec, "/box")

	case ModeRootfs:
		return buildOverlay(spec)

	default:
		return fmt.Errorf("unknown filesystem mode %d", spec.Mode)
	}
}

// buildLayered implements Tmpfs mode: a bare tmpfs at base, with user
// mounts, /proc, and /dev applied beneath it before pivoting.
func buildLayered(spec Spec, base string) error {
	if err := mountTmpfs(base, fmt.Sprintf("mode=700,size=%s", sizeOrDefault(spec.TmpfsSize, defaultTmpfsSize))); err != nil {
		return err
	}

	if err := applyMounts(spec, base); err != nil {
		return err
	}

	return pivot(base)
}

// buildOverlay implements Rootfs mode: the same tmpfs scaffolding as
// Tmpfs, with an overlayfs (lower=rootfs, upper/work under /box/overlay)
// mounted at /box/overlay/merged, which becomes the pivot target.
func buildOverlay(spec Spec) error {
	const base = "/box"

	if err := mountTmpfs(base, fmt.Sprintf("mode=700,size=%s", sizeOrDefault(spec.TmpfsSize, defaultTmpfsSize))); err != nil {
		return err
	}

	layout := overlayLayout{
		lower:  spec.RootfsPath,
		upper:  base + "/overlay/upper",
		work:   base + "/overlay/work",
		merged: base + "/overlay/merged",
	}

	if err := mountOverlay(layout); err != nil {
		return err
	}

	merged := spec
	if err := applyMounts(merged, layout.merged); err != nil {
		return err
	}

	return pivot(layout.merged)
}

// overlayLayout is the value described in spec.md §3's OverlayLayout type:
// owned by the Filesystem Builder, consumed and dropped before pivot_root,
// never retained across the root switch (the tmpfs backing it is detached
// by pivot's MNT_DETACH unmount).
type overlayLayout struct {
	lower, upper, work, merged string
}

func mountOverlay(l overlayLayout) error {
	for _, dir := range []string{l.upper, l.work, l.merged} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create overlay dir %s: %w", dir, err)
		}
	}

	options := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", l.lower, l.upper, l.work)
	if err := unix.Mount("overlay", l.merged, "overlay", 0, options); err != nil {
		return fmt.Errorf("mount overlay at %s: %w", l.merged, err)
	}

	return nil
}

// applyMounts lays down /proc, /dev, and user bind mounts beneath base, in
// that order; none of them depend on the others completing first, but
// doing /proc and /dev before user mounts matches the original
// implementation's ordering.
func applyMounts(spec Spec, base string) error {
	if spec.MountProc {
		if err := mountProc(base); err != nil {
			return err
		}
	}

	if spec.MountDev {
		if err := mountDev(base, spec.DevSize, spec.ShmSize); err != nil {
			return err
		}
	}

	for _, m := range spec.Mounts {
		dst := base + m.Dest
		if err := bindMount(m.Host, dst, m.ReadOnly); err != nil {
			return fmt.Errorf("bind mount %s -> %s: %w", m.Host, m.Dest, err)
		}
	}

	return nil
}
