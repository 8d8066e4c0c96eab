// Package rootfs implements the Filesystem Builder component of spec.md
// §4.4: private-mount propagation, tmpfs/overlay/host root modes, bind
// mounts, /proc and /dev, and the final pivot_root.
package rootfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MakeRootPrivate mounts "/" MS_PRIVATE|MS_REC, the mandatory first step
// before any further mount activity: it stops mount/unmount events in this
// namespace from propagating back to the host.
func MakeRootPrivate() error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make root private: %w", err)
	}
	return nil
}

// mountTmpfs mounts a tmpfs with the given mount-option string at target,
// creating target first if needed.
func mountTmpfs(target, options string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	if err := unix.Mount("tmpfs", target, "tmpfs", 0, options); err != nil {
		return fmt.Errorf("mount tmpfs at %s: %w", target, err)
	}

	return nil
}

// bindMount performs a recursive bind mount of src onto dst, creating dst
// first (directory or file, matching src's type), and optionally remounts
// read-only.
func bindMount(src, dst string, readOnly bool) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat bind source %s: %w", src, err)
	}

	if err := prepareTarget(dst, info); err != nil {
		return err
	}

	if err := unix.Mount(src, dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind mount %s onto %s: %w", src, dst, err)
	}

	if readOnly {
		if err := unix.Mount("", dst, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_NOSUID, ""); err != nil {
			return fmt.Errorf("remount %s read-only: %w", dst, err)
		}
	}

	return nil
}

// prepareTarget creates dst as a directory or an empty regular file,
// matching src's type, per spec.md §4.4's bind mount contract. Anything
// else (symlink, socket, fifo) is rejected.
func prepareTarget(dst string, srcInfo os.FileInfo) error {
	mode := srcInfo.Mode()

	switch {
	case mode.IsDir():
		return os.MkdirAll(dst, 0o755)

	case mode.IsRegular(), mode&os.ModeDevice != 0, mode&os.ModeCharDevice != 0:
		if err := os.MkdirAll(parentDir(dst), 0o755); err != nil {
			return fmt.Errorf("create parent of %s: %w", dst, err)
		}

		f, err := os.OpenFile(dst, os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("touch %s: %w", dst, err)
		}
		return f.Close()

	default:
		return fmt.Errorf("bind mount source has unsupported type: %s", mode)
	}
}

func parentDir(path string) string {
	i := len(path) - 1
	for i > 0 && path[i] != '/' {
		i--
	}
	if i == 0 {
		return "/"
	}
	return path[:i]
}

// mountProc mounts a procfs at <base>/proc with MS_NOSUID|MS_NOEXEC|MS_NODEV.
func mountProc(base string) error {
	target := base + "/proc"
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	if err := unix.Mount("proc", target, "proc", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, ""); err != nil {
		return fmt.Errorf("mount proc at %s: %w", target, err)
	}

	return nil
}

// allowedDevices is the host device allowlist spec.md §4.4 bind-mounts RW
// into the new /dev.
var allowedDevices = []string{"null", "zero", "random", "urandom", "tty"}

// Built-in tmpfs size options, overridable via Spec.TmpfsSize/DevSize/ShmSize
// (and, in turn, the optional config file's tmpfs_size/dev_size/shm_size).
const (
	defaultTmpfsSize = "512m"
	defaultDevSize   = "2m"
	defaultShmSize   = "64m"
)

// sizeOrDefault returns size if set, otherwise fallback.
func sizeOrDefault(size, fallback string) string {
	if size == "" {
		return fallback
	}
	return size
}

// mountDev builds the new /dev tree: tmpfs root, devpts, ptmx symlink, shm,
// and the bind-mounted device allowlist.
func mountDev(base, devSize, shmSize string) error {
	devDir := base + "/dev"
	if err := mountTmpfs(devDir, fmt.Sprintf("mode=755,size=%s", sizeOrDefault(devSize, defaultDevSize))); err != nil {
		return err
	}

	ptsDir := devDir + "/pts"
	if err := os.MkdirAll(ptsDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", ptsDir, err)
	}

	if err := unix.Mount("devpts", ptsDir, "devpts", 0, "newinstance,ptmxmode=0666,mode=620"); err != nil {
		return fmt.Errorf("mount devpts at %s: %w", ptsDir, err)
	}

	if err := os.Symlink("pts/ptmx", devDir+"/ptmx"); err != nil {
		return fmt.Errorf("symlink ptmx: %w", err)
	}

	shmDir := devDir + "/shm"
	if err := mountTmpfs(shmDir, fmt.Sprintf("mode=1777,size=%s", sizeOrDefault(shmSize, defaultShmSize))); err != nil {
		return err
	}

	for _, name := range allowedDevices {
		src := "/dev/" + name
		dst := devDir + "/" + name
		if err := bindMount(src, dst, false); err != nil {
			return fmt.Errorf("bind mount device %s: %w", src, err)
		}
	}

	return nil
}

// pivot performs the final chdir/pivot_root/chdir/detach-old-root dance
// described in spec.md §4.4, switching the process root to base.
func pivot(base string) error {
	if err := unix.Chdir(base); err != nil {
		return fmt.Errorf("chdir into new root %s: %w", base, err)
	}

	oldRoot := ".old_root"
	if err := os.Mkdir(oldRoot, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", oldRoot, err)
	}

	if err := unix.PivotRoot(".", oldRoot); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}

	if err := unix.Chdir("/"); err != nil {
		return fmt.Errorf("chdir to new /: %w", err)
	}

	if err := unix.Unmount("/"+oldRoot, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach old root: %w", err)
	}

	if err := os.Remove("/" + oldRoot); err != nil {
		return fmt.Errorf("remove old root mountpoint: %w", err)
	}

	return nil
}
